package vad

import (
	"time"

	"github.com/sastrawinata/wicara/internal/audio"
)

// Defaults tuned for 16kHz mono speech.
const (
	DefaultFixedThreshold    = 0.02
	DefaultMinThreshold      = 0.01
	DefaultMaxThreshold      = 0.5
	DefaultMinSpeechDuration = 100 * time.Millisecond
	DefaultSilenceDuration   = 700 * time.Millisecond
	maxWindowSize            = 10
)

// Config controls energy classification and event debouncing.
type Config struct {
	// Adaptive switches between a fixed threshold and one derived from the
	// rolling energy average.
	Adaptive       bool
	FixedThreshold float64
	MinThreshold   float64
	MaxThreshold   float64

	// A rising edge must persist this long before a speech event fires.
	MinSpeechDuration time.Duration
	// A falling edge must persist this long before a silence event fires.
	SilenceDuration time.Duration

	// WindowSize bounds the rolling energy window; capped at 10.
	WindowSize int
}

func (c Config) withDefaults() Config {
	if c.FixedThreshold == 0 {
		c.FixedThreshold = DefaultFixedThreshold
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = DefaultMinThreshold
	}
	if c.MaxThreshold == 0 {
		c.MaxThreshold = DefaultMaxThreshold
	}
	if c.MinSpeechDuration == 0 {
		c.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.WindowSize <= 0 || c.WindowSize > maxWindowSize {
		c.WindowSize = maxWindowSize
	}
	return c
}

// Result is the per-frame classification.
type Result struct {
	Speech            bool
	Energy            float64
	AdaptiveThreshold float64
	SpeechDuration    time.Duration
	SilenceDuration   time.Duration
	Timestamp         time.Time
}

// Event is a debounced speech or silence transition. Unlike per-frame
// results, events only fire once the edge has persisted for the configured
// duration, which suppresses chatter from transient energy spikes and dips.
type Event struct {
	Speech    bool
	Duration  time.Duration
	Timestamp time.Time
}

// Detector classifies frames as speech or silence using RMS energy against an
// adaptive threshold, and emits debounced transition events.
type Detector struct {
	config Config

	window []float64

	speaking        bool
	speechDuration  time.Duration
	silenceDuration time.Duration
}

// New creates a detector. Zero config fields take package defaults.
func New(config Config) *Detector {
	return &Detector{config: config.withDefaults()}
}

// Process classifies one frame and returns the per-frame result plus a
// transition event when one fires. At most one event is returned per frame.
func (d *Detector) Process(frame audio.Frame) (Result, *Event) {
	energy := frame.RMS()
	threshold := d.threshold(energy)
	speech := energy > threshold
	frameDur := frame.Duration()

	var event *Event
	if speech {
		d.speechDuration += frameDur
		d.silenceDuration = 0
		if !d.speaking && d.speechDuration >= d.config.MinSpeechDuration {
			d.speaking = true
			event = &Event{Speech: true, Duration: d.speechDuration, Timestamp: frame.Timestamp}
		}
	} else {
		d.silenceDuration += frameDur
		d.speechDuration = 0
		if d.speaking && d.silenceDuration >= d.config.SilenceDuration {
			d.speaking = false
			event = &Event{Speech: false, Duration: d.silenceDuration, Timestamp: frame.Timestamp}
		}
	}

	return Result{
		Speech:            speech,
		Energy:            energy,
		AdaptiveThreshold: threshold,
		SpeechDuration:    d.speechDuration,
		SilenceDuration:   d.silenceDuration,
		Timestamp:         frame.Timestamp,
	}, event
}

// threshold computes the classification threshold and folds the frame energy
// into the rolling window.
func (d *Detector) threshold(energy float64) float64 {
	if !d.config.Adaptive {
		return d.config.FixedThreshold
	}

	threshold := d.config.FixedThreshold
	if len(d.window) > 0 {
		var sum float64
		for _, e := range d.window {
			sum += e
		}
		threshold = 2 * sum / float64(len(d.window))
		if threshold < d.config.MinThreshold {
			threshold = d.config.MinThreshold
		}
		if threshold > d.config.MaxThreshold {
			threshold = d.config.MaxThreshold
		}
	}

	d.window = append(d.window, energy)
	if len(d.window) > d.config.WindowSize {
		d.window = d.window[1:]
	}
	return threshold
}

// Speaking reports whether the detector is inside a debounced speech region.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Reset clears durations and the rolling window but preserves configuration.
func (d *Detector) Reset() {
	d.window = nil
	d.speaking = false
	d.speechDuration = 0
	d.silenceDuration = 0
}
