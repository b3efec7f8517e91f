package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sastrawinata/wicara/internal/audio"
)

// SampleFunc produces the amplitude for one sample of synthetic audio. t is
// the sample index across the whole stream.
type SampleFunc func(t uint64) float32

// Tone returns a SampleFunc generating a sine at the given frequency and
// amplitude for a sample rate.
func Tone(freq float64, amplitude float32, sampleRate int) SampleFunc {
	return func(t uint64) float32 {
		return amplitude * float32(math.Sin(2*math.Pi*freq*float64(t)/float64(sampleRate)))
	}
}

// Silence returns a SampleFunc producing only zero samples.
func Silence() SampleFunc {
	return func(uint64) float32 { return 0 }
}

// SyntheticEngine is a software capture backend. It is the lower-fidelity
// fallback when no hardware device can be acquired, and doubles as a
// deterministic source in tests.
type SyntheticEngine struct {
	// Source produces samples; defaults to silence.
	Source SampleFunc
	// Pace is the delay between emitted frames. Zero means real time (the
	// frame duration); negative disables pacing entirely.
	Pace time.Duration
	// MaxFrames stops emission after that many frames when non-zero.
	MaxFrames uint64

	mu     sync.Mutex
	state  State
	config Config
	frames chan audio.Frame
	errs   chan error
	cancel context.CancelFunc
	paused chan bool
	done   chan struct{}
}

// NewSynthetic creates a synthetic engine with the given source.
func NewSynthetic(source SampleFunc) *SyntheticEngine {
	if source == nil {
		source = Silence()
	}
	return &SyntheticEngine{Source: source}
}

func (e *SyntheticEngine) Name() string { return "synthetic" }

// State returns the current lifecycle state.
func (e *SyntheticEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins frame production on a dedicated goroutine.
func (e *SyntheticEngine) Start(ctx context.Context, config Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		if e.state == StateCapturing || e.state == StatePaused || e.state == StateStarting {
			return ErrAlreadyRunning
		}
		return ErrInvalidTransition
	}
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		e.state = StateError
		return err
	}

	e.state = StateStarting
	e.config = config
	e.frames = make(chan audio.Frame, config.BufferFrames)
	e.errs = make(chan error, 1)
	e.paused = make(chan bool, 1)
	e.done = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(runCtx)

	e.state = StateCapturing
	return nil
}

func (e *SyntheticEngine) run(ctx context.Context) {
	defer close(e.done)
	defer close(e.frames)

	pace := e.Pace
	frameDur := time.Duration(e.config.FrameSize) * time.Second / time.Duration(e.config.SampleRate)
	if pace == 0 {
		pace = frameDur
	}

	var seq, sampleIdx uint64
	paused := false
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-e.paused:
			paused = p
			continue
		default:
		}

		if paused {
			select {
			case <-ctx.Done():
				return
			case p := <-e.paused:
				paused = p
			}
			continue
		}

		if e.MaxFrames > 0 && seq >= e.MaxFrames {
			return
		}

		samples := make([]float32, e.config.FrameSize*e.config.Channels)
		for i := 0; i < e.config.FrameSize; i++ {
			v := e.Source(sampleIdx)
			sampleIdx++
			for ch := 0; ch < e.config.Channels; ch++ {
				samples[i*e.config.Channels+ch] = v
			}
		}

		frame := audio.Frame{
			Samples:    samples,
			SampleRate: e.config.SampleRate,
			Channels:   e.config.Channels,
			Seq:        seq,
			Timestamp:  time.Now(),
		}
		seq++
		emitFrame(e.frames, frame, e.config.Overflow)

		if pace > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pace):
			}
		}
	}
}

// emitFrame delivers a frame without ever blocking the producer, applying the
// overflow policy when the channel is full.
func emitFrame(ch chan audio.Frame, frame audio.Frame, policy audio.OverflowPolicy) {
	select {
	case ch <- frame:
		return
	default:
	}

	switch policy {
	case audio.DropOldest:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- frame:
		default:
		}
	default:
		// DropNewest and everything else: discard the new frame. Expand and
		// StopOnOverflow are chunk-buffer policies applied downstream.
	}
}

// Stop halts production, closes the frame channel and returns to Idle.
func (e *SyntheticEngine) Stop() error {
	e.mu.Lock()
	if e.state != StateCapturing && e.state != StatePaused {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = StateStopping
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	return nil
}

// Pause suspends frame production without releasing the source.
func (e *SyntheticEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCapturing {
		return ErrInvalidTransition
	}
	e.state = StatePaused
	select {
	case e.paused <- true:
	default:
	}
	return nil
}

// Resume continues production after a Pause.
func (e *SyntheticEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return ErrInvalidTransition
	}
	e.state = StateCapturing
	select {
	case e.paused <- false:
	default:
	}
	return nil
}

// Frames returns the bounded frame channel.
func (e *SyntheticEngine) Frames() <-chan audio.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Errors returns the asynchronous error channel.
func (e *SyntheticEngine) Errors() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs
}
