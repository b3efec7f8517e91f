package repositories

import (
	"context"

	"github.com/sastrawinata/wicara/domain/entities"
)

// ResponseService abstracts any streaming chat/LLM provider
type ResponseService interface {
	// Generate produces the assistant reply to the user text given the prior
	// conversation history, streamed as text deltas. The last delta has Done
	// set and carries the total token usage. The channel is closed after it.
	Generate(ctx context.Context, history []*entities.Message, userText string) (<-chan Delta, error)
}

// Delta is one increment of a streamed assistant reply.
type Delta struct {
	Text       string `json:"text"`
	Done       bool   `json:"done"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	Err        error  `json:"-"`
}
