package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/audio"
	"github.com/sastrawinata/wicara/internal/capture"
	"github.com/sastrawinata/wicara/internal/record"
)

// State is the recording session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateRecording
	StatePaused
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	}
	return "unknown"
}

var ErrBadTransition = errors.New("client: invalid recording session transition")

// RecordingSession owns exactly one capture engine and one recording
// strategy, and serializes every lifecycle transition behind a mutex so
// concurrent UI or network triggers cannot interleave.
type RecordingSession struct {
	mu       sync.Mutex
	state    State
	engine   capture.Engine
	strategy record.Strategy
	logger   *zap.Logger
}

// NewRecordingSession pairs an engine with a strategy.
func NewRecordingSession(engine capture.Engine, strategy record.Strategy, logger *zap.Logger) *RecordingSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingSession{
		engine:   engine,
		strategy: strategy,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (s *RecordingSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize binds the strategy to the engine and moves to Ready.
func (s *RecordingSession) Initialize(cfg record.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateError {
		return ErrBadTransition
	}
	s.state = StateInitializing
	if err := s.strategy.Initialize(s.engine, cfg); err != nil {
		s.state = StateError
		return err
	}
	s.state = StateReady
	s.logger.Info("Recording session ready",
		zap.String("engine", s.engine.Name()),
		zap.String("strategy", string(s.strategy.Kind())))
	return nil
}

// Start begins recording.
func (s *RecordingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrBadTransition
	}
	if err := s.strategy.Start(ctx); err != nil {
		s.state = StateError
		return err
	}
	s.state = StateRecording
	return nil
}

// Stop halts recording and returns to Ready.
func (s *RecordingSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording && s.state != StatePaused {
		return ErrBadTransition
	}
	s.state = StateStopping
	if err := s.strategy.Stop(); err != nil && !errors.Is(err, record.ErrNotRecording) {
		s.state = StateError
		return err
	}
	s.state = StateReady
	return nil
}

// Pause suspends recording.
func (s *RecordingSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return ErrBadTransition
	}
	if err := s.strategy.Pause(); err != nil {
		return err
	}
	s.state = StatePaused
	return nil
}

// Resume continues a paused recording.
func (s *RecordingSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return ErrBadTransition
	}
	if err := s.strategy.Resume(); err != nil {
		return err
	}
	s.state = StateRecording
	return nil
}

// Acknowledge clears an auto-stop: when the strategy stopped itself (timeout
// or overflow) the session follows it back to Ready.
func (s *RecordingSession) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRecording || s.state == StatePaused {
		s.state = StateReady
	}
}

// Chunks exposes the strategy's chunk stream.
func (s *RecordingSession) Chunks() <-chan audio.Chunk { return s.strategy.Chunks() }

// Events exposes the strategy's event stream.
func (s *RecordingSession) Events() <-chan record.Event { return s.strategy.Events() }

// Errors exposes the strategy's error stream.
func (s *RecordingSession) Errors() <-chan error { return s.strategy.Errors() }

// Statistics returns the strategy's running counters.
func (s *RecordingSession) Statistics() record.Statistics { return s.strategy.Statistics() }
