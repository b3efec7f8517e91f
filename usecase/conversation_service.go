package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
)

// Event is one step of utterance processing, streamed back to the transport
// layer. Exactly one of the pointer fields is set.
type Event struct {
	Transcript *repositories.Transcript
	Delta      *repositories.Delta
	Err        error
}

// ConversationService orchestrates the conversation flow: transcription of
// an utterance, assistant reply generation and conversation bookkeeping.
type ConversationService struct {
	transcription      repositories.TranscriptionService
	response           repositories.ResponseService
	sessions           repositories.SessionRepository
	logger             *zap.Logger
	summarizeThreshold int
}

// NewConversationService creates a new conversation service. A zero
// summarizeThreshold disables history trimming.
func NewConversationService(
	transcription repositories.TranscriptionService,
	response repositories.ResponseService,
	sessions repositories.SessionRepository,
	summarizeThreshold int,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		transcription:      transcription,
		response:           response,
		sessions:           sessions,
		logger:             logger,
		summarizeThreshold: summarizeThreshold,
	}
}

// ProcessUtterance runs one complete utterance through transcription and
// reply generation. Results stream on the returned channel; a failure mid
// stream surfaces as an Err event and leaves the session active.
func (s *ConversationService) ProcessUtterance(
	ctx context.Context,
	session *entities.ConversationSession,
	audioData []byte,
	config repositories.AudioConfig,
) (<-chan Event, error) {
	if !session.IsActive() {
		return nil, entities.ErrSessionNotActive
	}
	if config.Language == "" {
		config.Language = session.TargetLanguage
	}

	transcripts, err := s.transcription.Transcribe(ctx, audioData, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start transcription: %w", err)
	}

	events := make(chan Event, 16)
	go s.run(ctx, session, transcripts, events)
	return events, nil
}

func (s *ConversationService) run(
	ctx context.Context,
	session *entities.ConversationSession,
	transcripts <-chan repositories.Transcript,
	events chan<- Event,
) {
	defer close(events)

	final, ok := s.relayTranscripts(ctx, transcripts, events)
	if !ok {
		s.fail(ctx, events, nil, "no speech detected in audio")
		return
	}

	userMsg, err := entities.NewMessage(entities.MessageRoleUser, final.Text)
	if err != nil {
		s.fail(ctx, events, nil, err.Error())
		return
	}
	userMsg.Confidence = &final.Confidence
	if err := userMsg.MarkProcessing(); err != nil {
		s.fail(ctx, events, nil, err.Error())
		return
	}

	// History for the model is everything before this utterance.
	history := make([]*entities.Message, len(session.Messages))
	copy(history, session.Messages)

	if err := session.AddMessage(userMsg); err != nil {
		s.fail(ctx, events, userMsg, err.Error())
		return
	}

	deltas, err := s.response.Generate(ctx, history, final.Text)
	if err != nil {
		s.fail(ctx, events, userMsg, err.Error())
		return
	}

	replyText, tokens, err := s.relayDeltas(ctx, deltas, events)
	if err != nil {
		s.fail(ctx, events, userMsg, err.Error())
		return
	}

	assistantMsg, err := entities.NewMessage(entities.MessageRoleAssistant, replyText)
	if err != nil {
		s.fail(ctx, events, userMsg, err.Error())
		return
	}
	assistantMsg.SetTokens(tokens)
	assistantMsg.MarkProcessing()
	assistantMsg.MarkCompleted()
	if err := session.AddMessage(assistantMsg); err != nil {
		s.fail(ctx, events, userMsg, err.Error())
		return
	}
	userMsg.MarkCompleted()

	if session.ShouldSummarize(s.summarizeThreshold) {
		s.logger.Info("Trimming conversation history",
			zap.String("session_id", session.ID),
			zap.Int("messages", len(session.Messages)))
		session.ClearMessages()
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Error("Failed to persist session", zap.Error(err))
	}
}

// relayTranscripts forwards partials and returns the final transcript.
func (s *ConversationService) relayTranscripts(
	ctx context.Context,
	transcripts <-chan repositories.Transcript,
	events chan<- Event,
) (repositories.Transcript, bool) {
	for {
		select {
		case <-ctx.Done():
			return repositories.Transcript{}, false
		case t, open := <-transcripts:
			if !open {
				return repositories.Transcript{}, false
			}
			if !s.deliver(ctx, events, Event{Transcript: &t}) {
				return repositories.Transcript{}, false
			}
			if t.Final {
				return t, true
			}
		}
	}
}

// relayDeltas forwards reply increments and returns the accumulated text and
// token usage once the terminal delta arrives. A failing delta surfaces its
// underlying error so the failure reason carries the detail.
func (s *ConversationService) relayDeltas(
	ctx context.Context,
	deltas <-chan repositories.Delta,
	events chan<- Event,
) (string, int, error) {
	var text string
	for {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case d, open := <-deltas:
			if !open {
				return "", 0, errors.New("response stream ended without a result")
			}
			if d.Err != nil {
				return "", 0, d.Err
			}
			if !s.deliver(ctx, events, Event{Delta: &d}) {
				return "", 0, ctx.Err()
			}
			if d.Done {
				if text == "" {
					return "", 0, errors.New("model returned an empty reply")
				}
				return text, d.TokensUsed, nil
			}
			text += d.Text
		}
	}
}

// fail marks the user message failed, emits the error event and leaves the
// session active so the client can simply try again.
func (s *ConversationService) fail(ctx context.Context, events chan<- Event, userMsg *entities.Message, reason string) {
	if userMsg != nil {
		if err := userMsg.MarkFailed(reason); err != nil {
			s.logger.Warn("Could not mark message failed", zap.Error(err))
		}
	}
	s.logger.Warn("Utterance processing failed", zap.String("reason", reason))
	s.deliver(ctx, events, Event{Err: fmt.Errorf("%s", reason)})
}

func (s *ConversationService) deliver(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
