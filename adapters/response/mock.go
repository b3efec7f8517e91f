package response

import (
	"context"
	"strings"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
)

// Mock is a deterministic ResponseService for development and tests. It
// echoes a fixed reply word by word.
type Mock struct {
	Reply  string
	Tokens int
}

// NewMock creates a mock response service with the given reply.
func NewMock(reply string) *Mock {
	if reply == "" {
		reply = "baik, terima kasih sudah bertanya"
	}
	return &Mock{Reply: reply, Tokens: len(strings.Fields(reply))}
}

// Generate streams the reply one word at a time, then a terminal delta.
func (m *Mock) Generate(ctx context.Context, _ []*entities.Message, _ string) (<-chan repositories.Delta, error) {
	deltas := make(chan repositories.Delta, 8)
	go func() {
		defer close(deltas)
		words := strings.Fields(m.Reply)
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			select {
			case deltas <- repositories.Delta{Text: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case deltas <- repositories.Delta{Done: true, TokensUsed: m.Tokens}:
		case <-ctx.Done():
		}
	}()
	return deltas, nil
}
