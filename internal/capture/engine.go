package capture

import (
	"context"
	"errors"

	"github.com/sastrawinata/wicara/internal/audio"
)

// Typed capture failures. The caller decides whether to retry or fall back to
// a lower-fidelity engine over the same contract.
var (
	ErrDeviceNotFound     = errors.New("capture: input device not found")
	ErrPermissionDenied   = errors.New("capture: permission to input device denied")
	ErrDeviceBusy         = errors.New("capture: input device busy")
	ErrBackendUnsupported = errors.New("capture: audio backend unsupported")
	ErrAlreadyRunning     = errors.New("capture: engine already running")
	ErrNotRunning         = errors.New("capture: engine not running")
	ErrInvalidTransition  = errors.New("capture: invalid state transition")
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateCapturing
	StatePaused
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Config describes the requested capture stream.
type Config struct {
	SampleRate int
	Channels   int
	// FrameSize is the per-channel sample count of each emitted frame.
	FrameSize int
	// BufferFrames bounds the frame channel between the capture context and
	// the consumer. The producer never blocks on a full channel; it applies
	// Overflow instead.
	BufferFrames int
	Overflow     audio.OverflowPolicy

	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
	SilenceDetection bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSize == 0 {
		c.FrameSize = c.SampleRate / 100 // 10ms frames
	}
	if c.BufferFrames == 0 {
		c.BufferFrames = 32
	}
	return c
}

// Validate checks the configuration against supported format bounds.
func (c Config) Validate() error {
	return audio.ValidateFormat(c.SampleRate, c.Channels)
}

// Engine is the capture contract. Implementations own the stream source and
// produce fixed-size frames on a dedicated goroutine; frame emission never
// blocks on a slow consumer.
type Engine interface {
	Start(ctx context.Context, config Config) error
	Stop() error
	Pause() error
	Resume() error
	// Frames is the bounded handoff channel to the consumer. Closed on Stop.
	Frames() <-chan audio.Frame
	// Errors surfaces asynchronous capture failures.
	Errors() <-chan error
	State() State
	// Name identifies the backend chosen by the capability probe.
	Name() string
}
