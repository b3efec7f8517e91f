package response

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTimeoutSeconds = 30
	defaultMaxTokens      = 1024

	systemPrompt = "You are a friendly voice assistant. Answer briefly and " +
		"conversationally, in the same language the user speaks."
)

// GeminiResponse implements the ResponseService interface using Google's
// Gemini API with streamed generation.
type GeminiResponse struct {
	client  *genai.Client
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

// NewGemini creates a new Gemini response adapter.
func NewGemini(logger *zap.Logger) (*GeminiResponse, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiResponse{
		client:  client,
		logger:  logger,
		model:   defaultModel,
		timeout: defaultTimeoutSeconds * time.Second,
	}, nil
}

// Generate streams the assistant reply as text deltas. The terminal delta
// carries Done and the total token usage.
func (g *GeminiResponse) Generate(ctx context.Context, history []*entities.Message, userText string) (<-chan repositories.Delta, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, convertHistory(history)...)
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   defaultMaxTokens,
		SystemInstruction: genai.NewContentFromText(systemInstruction(history), genai.RoleUser),
	}

	deltas := make(chan repositories.Delta, 8)
	go func() {
		defer close(deltas)

		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var tokens int
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				g.logger.Error("Gemini stream failed", zap.Error(err))
				g.deliver(ctx, deltas, repositories.Delta{Done: true, Err: err})
				return
			}
			if resp.UsageMetadata != nil {
				tokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			text := extractText(resp)
			if text == "" {
				continue
			}
			if !g.deliver(ctx, deltas, repositories.Delta{Text: text}) {
				return
			}
		}
		g.deliver(ctx, deltas, repositories.Delta{Done: true, TokensUsed: tokens})
	}()
	return deltas, nil
}

func (g *GeminiResponse) deliver(ctx context.Context, deltas chan<- repositories.Delta, d repositories.Delta) bool {
	select {
	case deltas <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}

// systemInstruction folds the base prompt and any system messages from the
// history into one instruction block.
func systemInstruction(history []*entities.Message) string {
	text := systemPrompt
	for _, msg := range history {
		if msg.Role != entities.MessageRoleSystem || msg.Status == entities.MessageStatusFailed || msg.Content == "" {
			continue
		}
		text += "\n" + msg.Content
	}
	return text
}

// convertHistory converts conversation messages to Gemini format. Failed
// messages are left out of the model context; system messages travel in the
// system instruction instead.
func convertHistory(history []*entities.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		if msg.Status == entities.MessageStatusFailed || msg.Content == "" {
			continue
		}
		if msg.Role == entities.MessageRoleSystem {
			continue
		}
		role := genai.RoleUser
		if msg.Role == entities.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return contents
}
