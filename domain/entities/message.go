package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageStatus tracks a message through its processing lifecycle.
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusCompleted  MessageStatus = "completed"
	MessageStatusFailed     MessageStatus = "failed"
)

const maxMessageContentLength = 10000

var (
	ErrEmptyContent        = errors.New("message content is empty")
	ErrContentTooLong      = errors.New("message content exceeds maximum length")
	ErrInvalidMessageState = errors.New("invalid message state transition")
)

// Message is a single utterance or reply inside a conversation session.
// Status only moves forward: pending to processing, processing to completed
// or failed.
type Message struct {
	ID           string        `json:"id" bson:"_id"`
	Role         MessageRole   `json:"role" bson:"role"`
	Content      string        `json:"content" bson:"content"`
	Status       MessageStatus `json:"status" bson:"status"`
	Tokens       *int          `json:"tokens,omitempty" bson:"tokens,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty" bson:"confidence,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" bson:"updated_at"`
}

// NewMessage creates a pending message. Content is trimmed and must end up
// between 1 and 10000 characters.
func NewMessage(role MessageRole, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxMessageContentLength {
		return nil, ErrContentTooLong
	}
	now := time.Now()
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Status:    MessageStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetContent replaces the content, applying the same trimming and bounds as
// NewMessage. Used when a final transcript revises the pending placeholder.
func (m *Message) SetContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > maxMessageContentLength {
		return ErrContentTooLong
	}
	m.Content = content
	m.UpdatedAt = time.Now()
	return nil
}

// MarkProcessing moves a pending message into processing.
func (m *Message) MarkProcessing() error {
	if m.Status != MessageStatusPending {
		return ErrInvalidMessageState
	}
	m.Status = MessageStatusProcessing
	m.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted finishes processing successfully and clears any earlier
// error message.
func (m *Message) MarkCompleted() error {
	if m.Status != MessageStatusProcessing {
		return ErrInvalidMessageState
	}
	m.Status = MessageStatusCompleted
	m.ErrorMessage = ""
	m.UpdatedAt = time.Now()
	return nil
}

// MarkFailed finishes processing with a failure reason.
func (m *Message) MarkFailed(reason string) error {
	if m.Status != MessageStatusProcessing {
		return ErrInvalidMessageState
	}
	m.Status = MessageStatusFailed
	m.ErrorMessage = reason
	m.UpdatedAt = time.Now()
	return nil
}

// SetTokens records the token count for the message.
func (m *Message) SetTokens(tokens int) {
	m.Tokens = &tokens
	m.UpdatedAt = time.Now()
}

// TokenCount returns the token count, treating unset as zero.
func (m *Message) TokenCount() int {
	if m.Tokens == nil {
		return 0
	}
	return *m.Tokens
}
