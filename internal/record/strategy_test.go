package record

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/audio"
	"github.com/sastrawinata/wicara/internal/capture"
	"github.com/sastrawinata/wicara/internal/vad"
)

func testVADConfig() vad.Config {
	return vad.Config{
		FixedThreshold:    0.02,
		MinSpeechDuration: 30 * time.Millisecond,
		SilenceDuration:   30 * time.Millisecond,
	}
}

func TestContinuousEmitsFixedSizeChunks(t *testing.T) {
	engine := capture.NewSynthetic(capture.Tone(440, 0.5, 16000))
	engine.Pace = time.Millisecond
	engine.MaxFrames = 50 // 50 x 10ms frames = five 100ms chunks

	s := NewContinuous(zap.NewNop())
	if err := s.Initialize(engine, Config{VAD: testVADConfig()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var chunks []audio.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				goto done
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("timed out waiting for chunks")
		}
	}
done:
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk.Samples) != 1600 {
			t.Errorf("chunk %d has %d samples, want 1600", i, len(chunk.Samples))
		}
		if chunk.Energy <= 0 {
			t.Errorf("chunk %d has zero energy for a loud tone", i)
		}
	}

	stats := s.Statistics()
	if stats.ChunksEmitted != 5 {
		t.Errorf("ChunksEmitted = %d, want 5", stats.ChunksEmitted)
	}
	if stats.AverageLevel <= 0 {
		t.Errorf("AverageLevel = %v, want > 0", stats.AverageLevel)
	}
	if stats.QualityScore <= 0 || stats.QualityScore > 1 {
		t.Errorf("QualityScore = %v, want in (0, 1]", stats.QualityScore)
	}
}

func TestCaptureFormatReachesEngine(t *testing.T) {
	engine := capture.NewSynthetic(capture.Tone(440, 0.5, 8000))
	engine.Pace = time.Millisecond
	engine.MaxFrames = 20 // 20 x 10ms frames at 8kHz = two 100ms chunks

	s := NewContinuous(zap.NewNop())
	err := s.Initialize(engine, Config{
		SampleRate: 8000,
		Channels:   1,
		VAD:        testVADConfig(),
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	timeout := time.After(5 * time.Second)
	var got int
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				if got == 0 {
					t.Fatal("no chunks emitted")
				}
				return
			}
			got++
			if chunk.SampleRate != 8000 {
				t.Errorf("chunk sample rate = %d, want the configured 8000", chunk.SampleRate)
			}
			if len(chunk.Samples) != 800 {
				t.Errorf("chunk has %d samples, want 800 for 100ms at 8kHz", len(chunk.Samples))
			}
		case <-timeout:
			t.Fatal("timed out waiting for chunks")
		}
	}
}

func TestRestartYieldsFreshChunkChannel(t *testing.T) {
	engine := capture.NewSynthetic(capture.Tone(440, 0.5, 16000))
	engine.Pace = time.Millisecond
	engine.MaxFrames = 10

	s := NewContinuous(zap.NewNop())
	if err := s.Initialize(engine, Config{VAD: testVADConfig()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	drainChunks(t, s.Chunks())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The first recording's channel is spent; a new Start hands out a live one.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if got := len(drainChunks(t, s.Chunks())); got == 0 {
		t.Error("no chunks after restart")
	}
}

func drainChunks(t *testing.T, ch <-chan audio.Chunk) []audio.Chunk {
	t.Helper()
	var out []audio.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out draining chunks")
		}
	}
}

func TestStartRequiresInitialize(t *testing.T) {
	s := NewContinuous(zap.NewNop())
	if err := s.Start(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start without Initialize = %v, want ErrNotInitialized", err)
	}
}

func TestSecondStartRejected(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond

	s := NewPushToTrigger(zap.NewNop())
	if err := s.Initialize(engine, Config{VAD: testVADConfig()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond

	s := NewContinuous(zap.NewNop())
	if err := s.Initialize(engine, Config{VAD: testVADConfig()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause before Start = %v, want ErrInvalidTransition", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double Pause = %v, want ErrInvalidTransition", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind, within time.Duration) Event {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %v event within %v", kind, within)
		}
	}
}

func TestSilenceTimeoutAutoStops(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond

	s := NewContinuous(zap.NewNop())
	err := s.Initialize(engine, Config{
		VAD:            testVADConfig(),
		SilenceTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	e := waitForEvent(t, s.Events(), EventTimeout, 2*time.Second)
	if e.Reason != "silence" {
		t.Errorf("timeout reason = %q, want silence", e.Reason)
	}

	// The recording is already stopped; a manual Stop is now an error.
	if err := s.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop after timeout = %v, want ErrNotRecording", err)
	}
}

func TestMaxDurationAutoStops(t *testing.T) {
	engine := capture.NewSynthetic(capture.Tone(440, 0.5, 16000))
	engine.Pace = time.Millisecond

	s := NewContinuous(zap.NewNop())
	err := s.Initialize(engine, Config{
		VAD:         testVADConfig(),
		MaxDuration: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	e := waitForEvent(t, s.Events(), EventTimeout, 2*time.Second)
	if e.Reason != "max_duration" {
		t.Errorf("timeout reason = %q, want max_duration", e.Reason)
	}
}

func TestManualStopCancelsTimers(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond

	s := NewContinuous(zap.NewNop())
	err := s.Initialize(engine, Config{
		VAD:            testVADConfig(),
		SilenceTimeout: 50 * time.Millisecond,
		MaxDuration:    60 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Both timers were cancelled; no timeout event may surface afterwards.
	time.Sleep(150 * time.Millisecond)
	for {
		select {
		case e := <-s.Events():
			if e.Kind == EventTimeout {
				t.Fatalf("timeout event after manual stop: reason %q", e.Reason)
			}
		default:
			return
		}
	}
}

func TestPushToTriggerIgnoresSilenceTimeout(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond

	s := NewPushToTrigger(zap.NewNop())
	err := s.Initialize(engine, Config{
		VAD:            testVADConfig(),
		SilenceTimeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	for {
		select {
		case e := <-s.Events():
			if e.Kind == EventTimeout {
				t.Fatal("push-to-trigger recording auto-stopped on silence")
			}
		default:
			return
		}
	}
}

func TestVoiceActivatedDropsSilentChunks(t *testing.T) {
	engine := capture.NewSynthetic(capture.Silence())
	engine.Pace = time.Millisecond
	engine.MaxFrames = 30

	s := NewVoiceActivated(zap.NewNop())
	if err := s.Initialize(engine, Config{VAD: testVADConfig()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				return
			}
			t.Fatalf("silent chunk leaked through voice activation: energy %v", chunk.Energy)
		case <-timeout:
			t.Fatal("chunk channel never closed")
		}
	}
}

func TestNoiseGateZeroesQuietChunks(t *testing.T) {
	engine := capture.NewSynthetic(capture.Tone(440, 0.001, 16000))
	engine.Pace = time.Millisecond
	engine.MaxFrames = 10

	s := NewContinuous(zap.NewNop())
	err := s.Initialize(engine, Config{
		VAD:           testVADConfig(),
		GateThreshold: 0.01,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				return
			}
			if chunk.Energy != 0 || chunk.Peak != 0 {
				t.Errorf("gated chunk has energy %v peak %v, want 0", chunk.Energy, chunk.Peak)
			}
			for _, sample := range chunk.Samples {
				if sample != 0 {
					t.Fatal("gated chunk contains non-zero samples")
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for chunks")
		}
	}
}

func TestCompressSoftKnee(t *testing.T) {
	samples := []float32{0.3, 0.8, -0.8, 1.0}
	compress(samples, 0.5, 4)

	want := []float32{0.3, 0.575, -0.575, 0.625}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestChunkBufferDropNewest(t *testing.T) {
	b := newChunkBuffer(2, audio.DropNewest)
	defer b.Close()

	// Without a consumer the pump can absorb at most two chunks (one in the
	// outbound channel, one in flight), so the fifth push must overflow.
	b.Push(audio.Chunk{Seq: 0})
	b.Push(audio.Chunk{Seq: 1})
	b.Push(audio.Chunk{Seq: 2})
	b.Push(audio.Chunk{Seq: 3})
	dropped, stop := b.Push(audio.Chunk{Seq: 4})
	if !dropped {
		t.Error("drop-newest did not report a drop on overflow")
	}
	if stop {
		t.Error("drop-newest requested a stop")
	}
}

func TestChunkBufferStopOnOverflow(t *testing.T) {
	b := newChunkBuffer(1, audio.StopOnOverflow)
	defer b.Close()

	b.Push(audio.Chunk{Seq: 0})
	b.Push(audio.Chunk{Seq: 1})
	b.Push(audio.Chunk{Seq: 2})
	_, stop := b.Push(audio.Chunk{Seq: 3})
	if !stop {
		t.Error("stop-on-overflow did not request a stop")
	}
}

func TestChunkBufferExpandNeverDrops(t *testing.T) {
	b := newChunkBuffer(2, audio.Expand)

	const total = 50
	for i := 0; i < total; i++ {
		dropped, stop := b.Push(audio.Chunk{Seq: uint64(i)})
		if dropped || stop {
			t.Fatalf("expand dropped chunk %d", i)
		}
	}
	b.Close()

	var got int
	for chunk := range b.Out() {
		if chunk.Seq != uint64(got) {
			t.Fatalf("chunk %d out of order: seq %d", got, chunk.Seq)
		}
		got++
	}
	if got != total {
		t.Errorf("drained %d chunks, want %d", got, total)
	}
}

func TestStrategyFactory(t *testing.T) {
	for _, kind := range []Kind{KindContinuous, KindPushToTrigger, KindVoiceActivated} {
		s, err := New(kind, zap.NewNop())
		if err != nil {
			t.Fatalf("New(%v) failed: %v", kind, err)
		}
		if s.Kind() != kind {
			t.Errorf("Kind() = %v, want %v", s.Kind(), kind)
		}
	}
	if _, err := New(Kind("bogus"), zap.NewNop()); err == nil {
		t.Error("unknown kind accepted")
	}
}
