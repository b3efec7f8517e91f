package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/sastrawinata/wicara/domain/entities"
)

// ErrSessionNotFound is returned by lookups for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines data access methods for conversation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.ConversationSession) error
	GetByID(ctx context.Context, id string) (*entities.ConversationSession, error)
	Update(ctx context.Context, session *entities.ConversationSession) error
	Delete(ctx context.Context, id string) error
	// ExpireIdle transitions sessions idle for longer than maxIdle to the
	// expired status and returns how many were expired.
	ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}
