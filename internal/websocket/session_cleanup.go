package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/repositories"
)

// SessionCleanupService expires idle conversation sessions in the background.
type SessionCleanupService struct {
	sessionRepo repositories.SessionRepository
	maxIdle     time.Duration
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service. Sessions
// idle for longer than maxIdle are transitioned to expired every interval.
func NewSessionCleanupService(sessionRepo repositories.SessionRepository, maxIdle, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if maxIdle == 0 {
		maxIdle = 30 * time.Minute
	}
	if interval == 0 {
		interval = 5 * time.Minute
	}
	return &SessionCleanupService{
		sessionRepo: sessionRepo,
		maxIdle:     maxIdle,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("maxIdle", s.maxIdle),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := s.sessionRepo.ExpireIdle(ctx, s.maxIdle)
	if err != nil {
		s.logger.Error("Failed to expire idle sessions", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("Expired idle sessions", zap.Int("count", expired))
	}
}
