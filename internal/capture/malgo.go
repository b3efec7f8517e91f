package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/audio"
)

// MalgoEngine captures from a hardware input device via miniaudio. The device
// callback runs on the backend's low-latency thread; it only converts samples
// and hands frames to the bounded channel, never blocking.
type MalgoEngine struct {
	logger     *zap.Logger
	deviceName string

	mu       sync.Mutex
	state    State
	config   Config
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	frames   chan audio.Frame
	errs     chan error

	seq     uint64
	pending []float32
	paused  bool
}

// NewMalgo creates a hardware capture engine. deviceName selects a specific
// input device; empty means the system default.
func NewMalgo(deviceName string, logger *zap.Logger) *MalgoEngine {
	return &MalgoEngine{
		logger:     logger,
		deviceName: deviceName,
	}
}

func (e *MalgoEngine) Name() string { return "malgo" }

// State returns the current lifecycle state.
func (e *MalgoEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start acquires the input device and begins frame production. Acquisition
// failures surface as the typed capture errors and leave the engine in the
// Error state.
func (e *MalgoEngine) Start(ctx context.Context, config Config) error {
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
	e.seq = 0
	e.pending = e.pending[:0]
	e.paused = false

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		e.state = StateError
		return fmt.Errorf("%w: %v", ErrBackendUnsupported, err)
	}
	e.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(config.Channels)
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if e.deviceName != "" {
		infos, err := malgoCtx.Devices(malgo.Capture)
		if err == nil {
			found := false
			for _, info := range infos {
				if info.Name() == e.deviceName {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					found = true
					break
				}
			}
			if !found {
				e.cleanupLocked()
				e.state = StateError
				return fmt.Errorf("%w: %q", ErrDeviceNotFound, e.deviceName)
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: e.onFrames,
	})
	if err != nil {
		e.cleanupLocked()
		e.state = StateError
		return classifyDeviceError(err)
	}
	e.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		e.cleanupLocked()
		e.state = StateError
		return classifyDeviceError(err)
	}

	e.logger.Info("Capture device started",
		zap.Int("sampleRate", config.SampleRate),
		zap.Int("channels", config.Channels),
		zap.Int("frameSize", config.FrameSize))

	e.state = StateCapturing
	return nil
}

// onFrames is the miniaudio data callback. It converts interleaved PCM-16
// bytes to normalized floats, slices them into fixed-size frames and emits
// them with the configured overflow policy.
func (e *MalgoEngine) onFrames(_, input []byte, _ uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCapturing || e.paused {
		return
	}

	e.pending = append(e.pending, audio.PCM16ToFloat32(audio.BytesToPCM16(input))...)
	frameLen := e.config.FrameSize * e.config.Channels
	for len(e.pending) >= frameLen {
		samples := make([]float32, frameLen)
		copy(samples, e.pending[:frameLen])
		e.pending = e.pending[frameLen:]

		emitFrame(e.frames, audio.Frame{
			Samples:    samples,
			SampleRate: e.config.SampleRate,
			Channels:   e.config.Channels,
			Seq:        e.seq,
			Timestamp:  time.Now(),
		}, e.config.Overflow)
		e.seq++
	}
}

// Stop releases the device and closes the frame channel.
func (e *MalgoEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCapturing && e.state != StatePaused {
		return ErrNotRunning
	}
	e.state = StateStopping
	e.cleanupLocked()
	close(e.frames)
	e.pending = e.pending[:0]
	e.state = StateIdle
	return nil
}

// Pause suspends frame emission while keeping the device open.
func (e *MalgoEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCapturing {
		return ErrInvalidTransition
	}
	e.paused = true
	e.state = StatePaused
	return nil
}

// Resume continues emission after Pause.
func (e *MalgoEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return ErrInvalidTransition
	}
	e.paused = false
	e.state = StateCapturing
	return nil
}

// Frames returns the bounded frame channel.
func (e *MalgoEngine) Frames() <-chan audio.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Errors returns the asynchronous error channel.
func (e *MalgoEngine) Errors() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs
}

func (e *MalgoEngine) cleanupLocked() {
	if e.device != nil {
		e.device.Stop()
		e.device.Uninit()
		e.device = nil
	}
	if e.malgoCtx != nil {
		_ = e.malgoCtx.Uninit()
		e.malgoCtx.Free()
		e.malgoCtx = nil
	}
}

// classifyDeviceError maps backend failures onto the typed capture errors.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no device"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnsupported, err)
	}
}
