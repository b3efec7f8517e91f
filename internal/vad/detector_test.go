package vad

import (
	"testing"
	"time"

	"github.com/sastrawinata/wicara/internal/audio"
)

// makeFrame builds a 10ms 16kHz mono frame with every sample at the given
// amplitude.
func makeFrame(amplitude float32, seq uint64) audio.Frame {
	samples := make([]float32, 160)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{
		Samples:    samples,
		SampleRate: 16000,
		Channels:   1,
		Seq:        seq,
		Timestamp:  time.Now(),
	}
}

func TestSpeechEventRequiresMinDuration(t *testing.T) {
	d := New(Config{
		FixedThreshold:    0.1,
		MinSpeechDuration: 50 * time.Millisecond,
		SilenceDuration:   100 * time.Millisecond,
	})

	// A single 10ms spike must never fire a speech event.
	_, event := d.Process(makeFrame(0.5, 0))
	if event != nil {
		t.Fatal("isolated single-frame spike fired a speech event")
	}
	_, event = d.Process(makeFrame(0.0, 1))
	if event != nil {
		t.Fatal("returning to silence before debounce fired an event")
	}

	// Five consecutive loud frames cross the 50ms debounce on the fifth.
	var fired *Event
	for i := uint64(2); i < 7; i++ {
		_, event = d.Process(makeFrame(0.5, i))
		if event != nil {
			fired = event
			break
		}
	}
	if fired == nil {
		t.Fatal("sustained speech never fired a speech event")
	}
	if !fired.Speech {
		t.Error("expected a speech event, got silence")
	}
	if fired.Duration < 50*time.Millisecond {
		t.Errorf("event duration %v is below the configured minimum", fired.Duration)
	}
}

func TestSilenceEventDebounce(t *testing.T) {
	d := New(Config{
		FixedThreshold:    0.1,
		MinSpeechDuration: 20 * time.Millisecond,
		SilenceDuration:   50 * time.Millisecond,
	})

	// Enter speech.
	for i := uint64(0); i < 3; i++ {
		d.Process(makeFrame(0.5, i))
	}
	if !d.Speaking() {
		t.Fatal("detector should be in speech after sustained energy")
	}

	// A single quiet frame must not end the speech region.
	_, event := d.Process(makeFrame(0.0, 3))
	if event != nil {
		t.Fatal("single silent frame fired a silence event")
	}
	if !d.Speaking() {
		t.Fatal("single silent frame ended the speech region")
	}

	// Sustained silence fires the event carrying the elapsed duration.
	var fired *Event
	for i := uint64(4); i < 10; i++ {
		_, event = d.Process(makeFrame(0.0, i))
		if event != nil {
			fired = event
			break
		}
	}
	if fired == nil {
		t.Fatal("sustained silence never fired a silence event")
	}
	if fired.Speech {
		t.Error("expected a silence event, got speech")
	}
	if fired.Duration < 50*time.Millisecond {
		t.Errorf("silence event duration %v is below the configured minimum", fired.Duration)
	}
	if d.Speaking() {
		t.Error("detector should have left the speech region")
	}
}

func TestAdaptiveThresholdClamping(t *testing.T) {
	d := New(Config{
		Adaptive:     true,
		MinThreshold: 0.05,
		MaxThreshold: 0.2,
	})

	// Prime the rolling window with near-zero energy; the adaptive threshold
	// must clamp up to MinThreshold rather than collapsing to zero.
	for i := uint64(0); i < 5; i++ {
		d.Process(makeFrame(0.001, i))
	}
	result, _ := d.Process(makeFrame(0.001, 5))
	if result.AdaptiveThreshold < 0.05 {
		t.Errorf("adaptive threshold %f below minimum clamp", result.AdaptiveThreshold)
	}

	// Loud history must clamp the threshold down to MaxThreshold.
	for i := uint64(6); i < 20; i++ {
		d.Process(makeFrame(0.9, i))
	}
	result, _ = d.Process(makeFrame(0.9, 20))
	if result.AdaptiveThreshold > 0.2 {
		t.Errorf("adaptive threshold %f above maximum clamp", result.AdaptiveThreshold)
	}
}

func TestResetPreservesConfig(t *testing.T) {
	d := New(Config{
		FixedThreshold:    0.1,
		MinSpeechDuration: 20 * time.Millisecond,
		SilenceDuration:   50 * time.Millisecond,
	})

	for i := uint64(0); i < 5; i++ {
		d.Process(makeFrame(0.5, i))
	}
	if !d.Speaking() {
		t.Fatal("expected speech region before reset")
	}

	d.Reset()
	if d.Speaking() {
		t.Error("Reset should clear the speech region")
	}

	result, _ := d.Process(makeFrame(0.0, 100))
	if result.SpeechDuration != 0 {
		t.Error("Reset should clear speech duration")
	}

	// Debounce still works with the original config after reset.
	var fired *Event
	for i := uint64(101); i < 106; i++ {
		_, event := d.Process(makeFrame(0.5, i))
		if event != nil {
			fired = event
			break
		}
	}
	if fired == nil || !fired.Speech {
		t.Error("detector should still debounce speech after Reset")
	}
}

func TestPerFrameResultFields(t *testing.T) {
	d := New(Config{FixedThreshold: 0.1})
	result, _ := d.Process(makeFrame(0.5, 0))
	if !result.Speech {
		t.Error("0.5 amplitude frame should classify as speech")
	}
	if result.Energy <= 0.4 || result.Energy >= 0.6 {
		t.Errorf("RMS of constant 0.5 frame should be ~0.5, got %f", result.Energy)
	}
	result, _ = d.Process(makeFrame(0.01, 1))
	if result.Speech {
		t.Error("0.01 amplitude frame should classify as silence")
	}
}
