package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
)

// SessionRepository is the default in-memory session store. Sessions live for
// the server process; the MongoDB adapter is the durable alternative.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.ConversationSession
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entities.ConversationSession),
	}
}

// Create inserts a new session.
func (r *SessionRepository) Create(_ context.Context, session *entities.ConversationSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

// GetByID retrieves a session by its id.
func (r *SessionRepository) GetByID(_ context.Context, id string) (*entities.ConversationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	return session, nil
}

// Update stores the session. The in-memory store shares pointers with its
// callers, so this mostly validates and confirms existence.
func (r *SessionRepository) Update(_ context.Context, session *entities.ConversationSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return repositories.ErrSessionNotFound
	}
	r.sessions[session.ID] = session
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repositories.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// ExpireIdle transitions active sessions idle past maxIdle to expired.
func (r *SessionRepository) ExpireIdle(_ context.Context, maxIdle time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired int
	for _, session := range r.sessions {
		if session.IsActive() && session.IdleSince() > maxIdle {
			session.Expire()
			expired++
		}
	}
	return expired, nil
}

// Len reports how many sessions are stored.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
