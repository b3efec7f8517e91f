package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sastrawinata/wicara/internal/audio"
)

func TestSyntheticEngineLifecycle(t *testing.T) {
	e := NewSynthetic(Tone(440, 0.5, 16000))
	e.Pace = time.Millisecond
	e.MaxFrames = 100

	if e.State() != StateIdle {
		t.Fatalf("new engine state = %v, want idle", e.State())
	}

	cfg := Config{SampleRate: 16000, Channels: 1, FrameSize: 160}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if e.State() != StateCapturing {
		t.Errorf("state after Start = %v, want capturing", e.State())
	}

	// Frames arrive with monotonically increasing sequence numbers and the
	// configured size.
	var last uint64
	for i := 0; i < 5; i++ {
		select {
		case frame := <-e.Frames():
			if len(frame.Samples) != 160 {
				t.Errorf("frame has %d samples, want 160", len(frame.Samples))
			}
			if i > 0 && frame.Seq <= last {
				t.Errorf("sequence not increasing: %d after %d", frame.Seq, last)
			}
			last = frame.Seq
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if e.State() != StateIdle {
		t.Errorf("state after Stop = %v, want idle", e.State())
	}
}

func TestSyntheticEngineRejectsDoubleStart(t *testing.T) {
	e := NewSynthetic(Silence())
	e.Pace = time.Millisecond

	if err := e.Start(context.Background(), Config{}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer e.Stop()

	if err := e.Start(context.Background(), Config{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestSyntheticEnginePauseResume(t *testing.T) {
	e := NewSynthetic(Tone(440, 0.5, 16000))
	e.Pace = time.Millisecond

	if err := e.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause while idle = %v, want ErrInvalidTransition", err)
	}

	if err := e.Start(context.Background(), Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if e.State() != StatePaused {
		t.Errorf("state after Pause = %v, want paused", e.State())
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if e.State() != StateCapturing {
		t.Errorf("state after Resume = %v, want capturing", e.State())
	}
}

func TestSyntheticEngineRejectsInvalidFormat(t *testing.T) {
	e := NewSynthetic(Silence())
	err := e.Start(context.Background(), Config{SampleRate: 4000, Channels: 1})
	if err == nil {
		t.Fatal("expected error for unsupported sample rate")
	}
	var formatErr *audio.FormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("expected FormatError, got %v", err)
	}
	if e.State() != StateError {
		t.Errorf("state after failed Start = %v, want error", e.State())
	}
}

func TestSyntheticEngineStopClosesFrames(t *testing.T) {
	e := NewSynthetic(Silence())
	e.Pace = time.Millisecond
	if err := e.Start(context.Background(), Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := e.Frames()
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Drain; the channel must be closed.
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("frame channel never closed after Stop")
		}
	}
}

func TestEmitFrameNeverBlocks(t *testing.T) {
	ch := make(chan audio.Frame, 2)
	mk := func(seq uint64) audio.Frame { return audio.Frame{Seq: seq} }

	// Fill, then overflow with drop-oldest: the two newest survive.
	emitFrame(ch, mk(0), audio.DropOldest)
	emitFrame(ch, mk(1), audio.DropOldest)
	emitFrame(ch, mk(2), audio.DropOldest)
	first := <-ch
	if first.Seq != 1 {
		t.Errorf("drop-oldest kept seq %d, want 1", first.Seq)
	}
	second := <-ch
	if second.Seq != 2 {
		t.Errorf("drop-oldest kept seq %d, want 2", second.Seq)
	}

	// Drop-newest: the incoming frame is discarded.
	emitFrame(ch, mk(10), audio.DropNewest)
	emitFrame(ch, mk(11), audio.DropNewest)
	emitFrame(ch, mk(12), audio.DropNewest)
	first = <-ch
	if first.Seq != 10 {
		t.Errorf("drop-newest kept seq %d, want 10", first.Seq)
	}
	second = <-ch
	if second.Seq != 11 {
		t.Errorf("drop-newest kept seq %d, want 11", second.Seq)
	}
}
