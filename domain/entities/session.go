package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a conversation session
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
	SessionStatusExpired SessionStatus = "expired"
)

var (
	ErrSessionNotActive = errors.New("session is not active")
)

// ConversationSession is one voice conversation between a client and the
// system. Status moves one way: Active to Closed or Expired, never back.
type ConversationSession struct {
	ID             string        `json:"id" bson:"_id"`
	UserID         string        `json:"user_id" bson:"user_id"`
	Status         SessionStatus `json:"status" bson:"status"`
	TargetLanguage string        `json:"target_language" bson:"target_language"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at" bson:"last_accessed_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	Messages       []*Message    `json:"messages" bson:"messages"`
	TotalTokens    int           `json:"total_tokens" bson:"total_tokens"`
}

// NewConversationSession creates an active session for a user.
func NewConversationSession(userID, targetLanguage string) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Status:         SessionStatusActive,
		TargetLanguage: targetLanguage,
		CreatedAt:      now,
		LastAccessedAt: now,
		Messages:       make([]*Message, 0),
	}
}

// IsActive reports whether the session still accepts messages.
func (s *ConversationSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// AddMessage appends a message to an active session, accumulates its token
// count and refreshes the access time. Closed and expired sessions reject
// new messages.
func (s *ConversationSession) AddMessage(m *Message) error {
	if !s.IsActive() {
		return ErrSessionNotActive
	}
	s.Messages = append(s.Messages, m)
	s.TotalTokens += m.TokenCount()
	s.Touch()
	return nil
}

// Touch refreshes the last-accessed timestamp.
func (s *ConversationSession) Touch() {
	s.LastAccessedAt = time.Now()
}

// Close ends the session. Calling it again, or on an expired session, keeps
// the first terminal status and timestamp.
func (s *ConversationSession) Close() {
	s.terminate(SessionStatusClosed)
}

// Expire marks the session expired. Idempotent the same way Close is.
func (s *ConversationSession) Expire() {
	s.terminate(SessionStatusExpired)
}

func (s *ConversationSession) terminate(status SessionStatus) {
	if s.Status != SessionStatusActive {
		return
	}
	s.Status = status
	now := time.Now()
	s.EndedAt = &now
}

// IdleSince reports how long ago the session was last touched.
func (s *ConversationSession) IdleSince() time.Duration {
	return time.Since(s.LastAccessedAt)
}

// ShouldSummarize reports whether the history has grown past the threshold
// and is due for summarization. A threshold of zero disables it.
func (s *ConversationSession) ShouldSummarize(threshold int) bool {
	return threshold > 0 && len(s.Messages) > threshold
}

// ClearMessages drops the accumulated history, typically after it has been
// folded into a summary. The token total survives.
func (s *ConversationSession) ClearMessages() {
	s.Messages = s.Messages[:0]
}

// Validate validates the session data.
func (s *ConversationSession) Validate() error {
	if s.UserID == "" {
		return errors.New("user_id is required")
	}
	switch s.Status {
	case SessionStatusActive, SessionStatusClosed, SessionStatusExpired:
	default:
		return errors.New("invalid session status")
	}
	return nil
}
