package transcription

import (
	"context"
	"strings"

	"github.com/sastrawinata/wicara/domain/repositories"
)

// Mock is a deterministic TranscriptionService for development and tests. It
// streams word-by-word partials of a fixed script followed by a final result.
type Mock struct {
	// Script is the transcript to return; defaults to a greeting.
	Script string
	// Confidence reported on the final result.
	Confidence float64
}

// NewMock creates a mock transcription service with the given script.
func NewMock(script string) *Mock {
	if script == "" {
		script = "halo apa kabar"
	}
	return &Mock{Script: script, Confidence: 0.95}
}

// Transcribe streams cumulative partials and then the final transcript.
func (m *Mock) Transcribe(ctx context.Context, _ []byte, _ repositories.AudioConfig) (<-chan repositories.Transcript, error) {
	results := make(chan repositories.Transcript, 8)
	go func() {
		defer close(results)
		words := strings.Fields(m.Script)
		for i := 1; i < len(words); i++ {
			select {
			case results <- repositories.Transcript{Text: strings.Join(words[:i], " ")}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case results <- repositories.Transcript{Text: m.Script, Confidence: m.Confidence, Final: true}:
		case <-ctx.Done():
		}
	}()
	return results, nil
}
