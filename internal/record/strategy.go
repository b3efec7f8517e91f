package record

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/audio"
	"github.com/sastrawinata/wicara/internal/capture"
	"github.com/sastrawinata/wicara/internal/vad"
)

var (
	ErrNotInitialized    = errors.New("record: strategy not initialized")
	ErrAlreadyStarted    = errors.New("record: recording already started")
	ErrNotRecording      = errors.New("record: not recording")
	ErrInvalidTransition = errors.New("record: invalid state transition")
)

// Kind identifies a recording strategy variant.
type Kind string

const (
	KindContinuous     Kind = "continuous"
	KindPushToTrigger  Kind = "push_to_trigger"
	KindVoiceActivated Kind = "voice_activated"
)

// Config controls chunking, gating and auto-stop behavior shared by all
// strategy variants.
type Config struct {
	// SampleRate and Channels describe the capture format requested from the
	// engine. Zero lets the engine defaults apply.
	SampleRate int
	Channels   int

	ChunkDuration time.Duration
	VAD           vad.Config

	// GateThreshold zeroes out a chunk whose peak level falls below it.
	GateThreshold float64
	// CompressionKnee is the absolute level above which soft compression
	// kicks in; CompressionRatio divides the excess. Zero ratio disables
	// compression.
	CompressionKnee  float64
	CompressionRatio float64

	// SilenceTimeout auto-stops the recording after that much continuous
	// silence; zero disables it. MaxDuration caps the whole recording.
	// Both timers are independent and cancelled by any manual stop.
	SilenceTimeout time.Duration
	MaxDuration    time.Duration

	// BufferChunks bounds the outbound chunk buffer; Overflow decides what
	// happens when it fills up.
	BufferChunks int
	Overflow     audio.OverflowPolicy

	// HoldToTalk, for the push-to-trigger variant, treats Pause/Resume as
	// trigger release/press instead of a capture pause.
	HoldToTalk bool
}

func (c Config) withDefaults() Config {
	if c.ChunkDuration == 0 {
		c.ChunkDuration = audio.DefaultChunkDuration
	}
	if c.BufferChunks == 0 {
		c.BufferChunks = 64
	}
	if c.CompressionRatio == 0 && c.CompressionKnee > 0 {
		c.CompressionRatio = 4
	}
	return c
}

// EventKind classifies recording lifecycle events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventPaused
	EventResumed
	EventSpeech
	EventSilence
	EventTimeout
	EventOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventSpeech:
		return "speech"
	case EventSilence:
		return "silence"
	case EventTimeout:
		return "timeout"
	case EventOverflow:
		return "overflow"
	}
	return "unknown"
}

// Event is a recording lifecycle notification. Timeout events carry the
// triggering reason ("silence" or "max_duration").
type Event struct {
	Kind     EventKind
	Reason   string
	Duration time.Duration
	Time     time.Time
}

// Statistics is a snapshot of the running recording counters.
type Statistics struct {
	AverageLevel    float64
	PeakLevel       float64
	VoiceActivePct  float64
	ChunksEmitted   uint64
	ChunksDropped   uint64
	Overflows       uint64
	Errors          uint64
	// QualityScore blends level consistency and error rate into [0, 1].
	QualityScore float64
}

// Strategy is the common recording contract. Variants differ in when chunks
// are let through, not in the shape of the pipeline.
type Strategy interface {
	Initialize(engine capture.Engine, config Config) error
	Start(ctx context.Context) error
	Stop() error
	Pause() error
	Resume() error
	Chunks() <-chan audio.Chunk
	Events() <-chan Event
	Errors() <-chan error
	Statistics() Statistics
	Kind() Kind
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateRecording
	statePaused
)

// recorder is the shared implementation behind all strategy variants.
type recorder struct {
	kind   Kind
	logger *zap.Logger

	mu       sync.Mutex
	state    state
	engine   capture.Engine
	config   Config
	detector *vad.Detector
	buffer   *chunkBuffer
	events   chan Event
	errs     chan error
	cancel   context.CancelFunc
	done     chan struct{}

	silenceTimer *time.Timer
	maxTimer     *time.Timer

	stats statsAccumulator
}

func newRecorder(kind Kind, logger *zap.Logger) *recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &recorder{
		kind:   kind,
		logger: logger,
	}
}

func (r *recorder) Kind() Kind { return r.kind }

// Initialize binds the strategy to a capture engine. Must be called before
// Start.
func (r *recorder) Initialize(engine capture.Engine, config Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRecording || r.state == statePaused {
		return ErrAlreadyStarted
	}
	if engine == nil {
		return errors.New("record: nil capture engine")
	}
	r.engine = engine
	r.config = config.withDefaults()
	r.detector = vad.New(r.config.VAD)
	r.events = make(chan Event, 16)
	r.errs = make(chan error, 4)
	r.state = stateReady
	return nil
}

// Start begins capture and chunk production. A second Start while recording
// is rejected, not queued.
func (r *recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateUninitialized:
		return ErrNotInitialized
	case stateRecording, statePaused:
		return ErrAlreadyStarted
	}

	captureCfg := capture.Config{
		SampleRate: r.config.SampleRate,
		Channels:   r.config.Channels,
		Overflow:   r.config.Overflow,
	}
	if err := r.engine.Start(ctx, captureCfg); err != nil {
		return err
	}

	r.detector.Reset()
	r.buffer = newChunkBuffer(r.config.BufferChunks, r.config.Overflow)
	r.stats = statsAccumulator{}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	if r.config.SilenceTimeout > 0 && r.usesSilenceTimer() {
		r.silenceTimer = time.AfterFunc(r.config.SilenceTimeout, func() {
			r.timeoutStop("silence", r.config.SilenceTimeout)
		})
	}
	if r.config.MaxDuration > 0 {
		r.maxTimer = time.AfterFunc(r.config.MaxDuration, func() {
			r.timeoutStop("max_duration", r.config.MaxDuration)
		})
	}

	go r.run(runCtx)

	r.state = stateRecording
	r.emitEvent(Event{Kind: EventStarted, Time: time.Now()})
	return nil
}

func (r *recorder) usesSilenceTimer() bool {
	return r.kind != KindPushToTrigger
}

// run consumes frames from the capture engine, classifies them, assembles
// chunks and pushes them through the bounded buffer. It owns the assembler
// and all per-recording state, so no locking is needed on the hot path.
func (r *recorder) run(ctx context.Context) {
	defer close(r.done)
	defer r.buffer.Close()

	// The assembler is sized from the first frame, which carries the
	// effective format the engine settled on.
	var asm *audio.ChunkAssembler

	frames := r.engine.Frames()
	errs := r.engine.Errors()
	for {
		select {
		case <-ctx.Done():
			r.flush(asm)
			return
		case err, ok := <-errs:
			if ok && err != nil {
				r.stats.recordError()
				r.emitError(err)
			}
		case frame, ok := <-frames:
			if !ok {
				r.flush(asm)
				return
			}
			if asm == nil {
				var err error
				asm, err = audio.NewChunkAssembler(frame.SampleRate, frame.Channels, r.config.ChunkDuration)
				if err != nil {
					r.stats.recordError()
					r.emitError(err)
					return
				}
			}
			r.processFrame(asm, frame)
		}
	}
}

func (r *recorder) processFrame(asm *audio.ChunkAssembler, frame audio.Frame) {
	result, event := r.detector.Process(frame)

	if event != nil {
		kind := EventSilence
		if event.Speech {
			kind = EventSpeech
		}
		r.emitEvent(Event{Kind: kind, Duration: event.Duration, Time: event.Timestamp})
	}
	if result.Speech {
		r.resetSilenceTimer()
	}

	speaking := r.detector.Speaking()
	for _, chunk := range asm.Add(frame, result.Speech) {
		r.processChunk(chunk, speaking)
	}
}

// processChunk applies the noise gate and compression, updates statistics and
// forwards the chunk through the bounded buffer according to the variant's
// gating rule.
func (r *recorder) processChunk(chunk audio.Chunk, speaking bool) {
	if r.kind == KindVoiceActivated && !speaking && !chunk.Speech {
		// Voice-activated recording only ships voice-qualified chunks.
		return
	}

	if r.config.GateThreshold > 0 && chunk.Peak < r.config.GateThreshold {
		for i := range chunk.Samples {
			chunk.Samples[i] = 0
		}
		chunk.Energy = 0
		chunk.Peak = 0
	} else if r.config.CompressionKnee > 0 && r.config.CompressionRatio > 1 {
		compress(chunk.Samples, r.config.CompressionKnee, r.config.CompressionRatio)
	}

	r.stats.recordChunk(chunk)

	dropped, stop := r.buffer.Push(chunk)
	if dropped {
		r.stats.recordDrop()
		r.emitEvent(Event{Kind: EventOverflow, Time: time.Now()})
	}
	if stop {
		r.emitEvent(Event{Kind: EventOverflow, Reason: "stop_on_overflow", Time: time.Now()})
		go r.Stop() // off the frame path; Stop takes the state lock
	}
}

func (r *recorder) flush(asm *audio.ChunkAssembler) {
	if asm == nil {
		return
	}
	if tail := asm.Flush(); tail != nil {
		r.stats.recordChunk(*tail)
		r.buffer.Push(*tail)
	}
}

// compress applies soft-knee compression: the portion of a sample's magnitude
// above the knee is divided by the ratio.
func compress(samples []float32, knee, ratio float64) {
	for i, s := range samples {
		mag := math.Abs(float64(s))
		if mag <= knee {
			continue
		}
		out := knee + (mag-knee)/ratio
		if s < 0 {
			out = -out
		}
		samples[i] = float32(out)
	}
}

// Stop halts the recording, cancels both auto-stop timers and stops the
// capture engine. The trailing partial chunk is flushed, never dropped.
func (r *recorder) Stop() error {
	r.mu.Lock()
	if r.state != stateRecording && r.state != statePaused {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.stopTimersLocked()
	cancel := r.cancel
	done := r.done
	engine := r.engine
	r.state = stateReady
	r.mu.Unlock()

	if err := engine.Stop(); err != nil && !errors.Is(err, capture.ErrNotRunning) {
		r.emitError(err)
	}
	cancel()
	<-done

	r.emitEvent(Event{Kind: EventStopped, Time: time.Now()})
	return nil
}

// timeoutStop is invoked by an auto-stop timer. It stops the recording and
// emits a distinguishing timeout event carrying the reason.
func (r *recorder) timeoutStop(reason string, elapsed time.Duration) {
	if err := r.Stop(); err != nil {
		return // a manual stop already won the race
	}
	r.emitEvent(Event{Kind: EventTimeout, Reason: reason, Duration: elapsed, Time: time.Now()})
	r.logger.Info("Recording auto-stopped",
		zap.String("reason", reason),
		zap.Duration("elapsed", elapsed))
}

// Pause suspends capture without tearing down the recording.
func (r *recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		return ErrInvalidTransition
	}
	if err := r.engine.Pause(); err != nil {
		return err
	}
	r.stopTimersLocked()
	r.state = statePaused
	r.emitEvent(Event{Kind: EventPaused, Time: time.Now()})
	return nil
}

// Resume continues a paused recording and re-arms the auto-stop timers.
func (r *recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePaused {
		return ErrInvalidTransition
	}
	if err := r.engine.Resume(); err != nil {
		return err
	}
	if r.config.SilenceTimeout > 0 && r.usesSilenceTimer() {
		r.silenceTimer = time.AfterFunc(r.config.SilenceTimeout, func() {
			r.timeoutStop("silence", r.config.SilenceTimeout)
		})
	}
	if r.config.MaxDuration > 0 {
		r.maxTimer = time.AfterFunc(r.config.MaxDuration, func() {
			r.timeoutStop("max_duration", r.config.MaxDuration)
		})
	}
	r.state = stateRecording
	r.emitEvent(Event{Kind: EventResumed, Time: time.Now()})
	return nil
}

func (r *recorder) stopTimersLocked() {
	if r.silenceTimer != nil {
		r.silenceTimer.Stop()
		r.silenceTimer = nil
	}
	if r.maxTimer != nil {
		r.maxTimer.Stop()
		r.maxTimer = nil
	}
}

func (r *recorder) resetSilenceTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.silenceTimer != nil {
		r.silenceTimer.Reset(r.config.SilenceTimeout)
	}
}

// Chunks returns the outbound chunk channel. Closed when the recording stops.
func (r *recorder) Chunks() <-chan audio.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buffer == nil {
		return nil
	}
	return r.buffer.Out()
}

// Events returns the lifecycle event channel.
func (r *recorder) Events() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// Errors returns the asynchronous error channel.
func (r *recorder) Errors() <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// Statistics returns a snapshot of the running counters.
func (r *recorder) Statistics() Statistics {
	return r.stats.snapshot()
}

func (r *recorder) emitEvent(e Event) {
	select {
	case r.events <- e:
	default:
		// Slow event consumers lose events rather than stalling the pipeline.
	}
}

func (r *recorder) emitError(err error) {
	select {
	case r.errs <- err:
	default:
	}
}

// Continuous records from Start until Stop or an auto-stop timer fires. All
// chunks are forwarded.
type Continuous struct{ *recorder }

// NewContinuous creates the always-on strategy.
func NewContinuous(logger *zap.Logger) *Continuous {
	return &Continuous{newRecorder(KindContinuous, logger)}
}

// PushToTrigger records only between explicit Start and Stop calls. With
// HoldToTalk set, Pause releases and Resume re-engages the trigger.
type PushToTrigger struct{ *recorder }

// NewPushToTrigger creates the explicit-trigger strategy.
func NewPushToTrigger(logger *zap.Logger) *PushToTrigger {
	return &PushToTrigger{newRecorder(KindPushToTrigger, logger)}
}

// VoiceActivated keeps the capture engine running but only forwards chunks
// inside debounced speech regions.
type VoiceActivated struct{ *recorder }

// NewVoiceActivated creates the VAD-following strategy.
func NewVoiceActivated(logger *zap.Logger) *VoiceActivated {
	return &VoiceActivated{newRecorder(KindVoiceActivated, logger)}
}

// New returns the strategy for a kind.
func New(kind Kind, logger *zap.Logger) (Strategy, error) {
	switch kind {
	case KindContinuous:
		return NewContinuous(logger), nil
	case KindPushToTrigger:
		return NewPushToTrigger(logger), nil
	case KindVoiceActivated:
		return NewVoiceActivated(logger), nil
	default:
		return nil, errors.New("record: unknown strategy kind " + string(kind))
	}
}
