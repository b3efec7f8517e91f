package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
	"github.com/sastrawinata/wicara/internal/auth"
	"github.com/sastrawinata/wicara/internal/metrics"
	"github.com/sastrawinata/wicara/internal/protocol"
	"github.com/sastrawinata/wicara/usecase"
)

const defaultSampleRate = 16000

type WriteData struct {
	// Type is the websocket frame type.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub. One
// client owns at most one conversation session at a time.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Connection id assigned at upgrade time.
	connectionID string

	// JWT claims from the upgrade request; nil means unauthenticated.
	claims *auth.JWTClaims

	logger *zap.Logger
	chain  *protocol.Chain

	// Conversation state, guarded by mutex.
	mutex         sync.Mutex
	session       *entities.ConversationSession
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	autoDetect    bool

	// closeAfterReply asks the read loop to shut the transport down once the
	// pending reply is on the wire. Set by session.end.
	closeAfterReply bool

	closeOnce sync.Once
}

// readPump pumps messages from the websocket connection through the
// processing chain.
func (c *Client) readPump() {
	defer func() {
		c.teardown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			if reply := c.chain.Process(context.Background(), message); reply != nil {
				c.recordReply(reply)
				c.sendEnvelope(reply)
			}
			if c.shouldClose() {
				// The close frame queues behind the reply; the peer's close
				// response (or the read deadline) ends this loop.
				c.sendCloseFrame()
			}
		case websocket.BinaryMessage:
			metrics.AudioBytesReceived.Add(float64(len(message)))
			c.handleAudio(message)
		default:
			c.logger.Warn("Received unknown frame type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the send channel to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown runs once when the connection goes away: the session survives in
// the repository, but in-flight processing is cancelled.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.mutex.Lock()
		if c.sessionCancel != nil {
			c.sessionCancel()
		}
		c.mutex.Unlock()
		c.hub.unregister <- c
	})
}

// buildChain wires the validate, authenticate, dispatch sequence for this
// connection.
func (c *Client) buildChain() *protocol.Chain {
	chain := protocol.NewChain(c.authenticate, c.logger)
	chain.Handle(protocol.MessageTypeSessionStart, c.handleSessionStart)
	chain.Handle(protocol.MessageTypeSessionEnd, c.handleSessionEnd)
	chain.Handle(protocol.MessageTypeHeartbeat, c.handleHeartbeat)
	chain.Handle(protocol.MessageTypeAudioData, c.handleAudioData)
	return chain
}

// authenticate rejects every message on a connection that upgraded without a
// valid token. The connection itself stays open.
func (c *Client) authenticate(env *protocol.Envelope) error {
	metrics.MessagesReceived.WithLabelValues(string(env.Type)).Inc()
	if c.claims == nil {
		return errors.New("no valid token presented at upgrade")
	}
	return nil
}

func (c *Client) handleSessionStart(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	var start protocol.SessionStartPayload
	if len(env.Payload) > 0 {
		if err := env.DecodePayload(&start); err != nil {
			return nil, protocol.NewError(protocol.ErrCodeInvalidMessage, err.Error())
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Starting over replaces the previous conversation.
	if c.session != nil && c.session.IsActive() {
		c.closeSessionLocked(ctx)
	}

	// A known session id on the envelope restores that session instead of
	// opening a fresh one. Anything stale or foreign falls back to create.
	var session *entities.ConversationSession
	if env.SessionID != "" {
		existing, err := c.hub.sessionRepo.GetByID(ctx, env.SessionID)
		if err != nil && !errors.Is(err, repositories.ErrSessionNotFound) {
			c.logger.Error("Failed to look up session", zap.Error(err))
			return nil, protocol.NewError(protocol.ErrCodeInternal, "failed to look up session")
		}
		if err == nil && existing.UserID == c.claims.UserID && existing.IsActive() {
			session = existing
		}
	}

	restored := session != nil
	if restored {
		if start.TargetLanguage != "" {
			session.TargetLanguage = start.TargetLanguage
		}
		session.Touch()
		if err := c.hub.sessionRepo.Update(ctx, session); err != nil {
			c.logger.Error("Failed to restore session", zap.Error(err))
			return nil, protocol.NewError(protocol.ErrCodeInternal, "failed to restore session")
		}
	} else {
		session = entities.NewConversationSession(c.claims.UserID, start.TargetLanguage)
		if err := c.hub.sessionRepo.Create(ctx, session); err != nil {
			c.logger.Error("Failed to create session", zap.Error(err))
			return nil, protocol.NewError(protocol.ErrCodeInternal, "failed to create session")
		}
		metrics.ActiveSessions.Inc()
	}

	c.session = session
	c.autoDetect = start.AutoDetectLanguage
	c.sessionCtx, c.sessionCancel = context.WithCancel(context.Background())

	c.logger.Info("Conversation session started",
		zap.String("connectionID", c.connectionID),
		zap.String("sessionID", session.ID),
		zap.String("language", session.TargetLanguage),
		zap.Bool("restored", restored))

	return protocol.NewEnvelope(protocol.MessageTypeSessionStarted, session.ID, protocol.SessionStartedPayload{
		SessionID: session.ID,
	})
}

func (c *Client) handleSessionEnd(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.session == nil {
		return nil, protocol.NewError(protocol.ErrCodeSessionNotFound, "no session to end")
	}
	if env.SessionID != "" && env.SessionID != c.session.ID {
		return nil, protocol.NewError(protocol.ErrCodeSessionNotFound, "unknown session id")
	}

	sessionID := c.session.ID
	c.closeSessionLocked(ctx)
	c.closeAfterReply = true

	return protocol.NewEnvelope(protocol.MessageTypeSessionEnd, sessionID, nil)
}

// shouldClose reports whether a handler asked for the transport to go down
// once its reply is on the wire.
func (c *Client) shouldClose() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closeAfterReply
}

// sendCloseFrame queues a normal-closure frame behind any pending replies.
func (c *Client) sendCloseFrame() {
	payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	select {
	case c.send <- WriteData{Type: websocket.CloseMessage, Payload: payload}:
	default:
	}
}

// closeSessionLocked closes the current session, cancels in-flight work and
// persists the terminal state. Caller holds the mutex.
func (c *Client) closeSessionLocked(ctx context.Context) {
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	if c.session == nil {
		return
	}
	if c.session.IsActive() {
		c.session.Close()
		metrics.ActiveSessions.Dec()
	}
	if err := c.hub.sessionRepo.Update(ctx, c.session); err != nil {
		c.logger.Error("Failed to persist closed session",
			zap.String("sessionID", c.session.ID),
			zap.Error(err))
	}
	c.logger.Info("Conversation session closed", zap.String("sessionID", c.session.ID))
	c.session = nil
}

func (c *Client) handleHeartbeat(_ context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	return protocol.NewPongEnvelope(env), nil
}

// handleAudioData is the JSON fallback for clients that cannot send binary
// frames.
func (c *Client) handleAudioData(_ context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	var payload protocol.AudioDataPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, protocol.NewError(protocol.ErrCodeInvalidMessage, err.Error())
	}
	audio, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		return nil, protocol.NewError(protocol.ErrCodeInvalidMessage, "audio is not valid base64")
	}
	metrics.AudioBytesReceived.Add(float64(len(audio)))
	c.handleAudio(audio)
	return nil, nil
}

// handleAudio feeds one complete utterance into the conversation pipeline.
// Results stream back asynchronously.
func (c *Client) handleAudio(data []byte) {
	if c.claims == nil {
		c.sendError("", protocol.ErrCodeNotAuthenticated, "authentication required")
		return
	}

	c.mutex.Lock()
	session := c.session
	ctx := c.sessionCtx
	autoDetect := c.autoDetect
	c.mutex.Unlock()

	if session == nil || !session.IsActive() {
		c.sendError("", protocol.ErrCodeSessionNotFound, "start a session before sending audio")
		return
	}

	config := repositories.AudioConfig{
		SampleRate:         defaultSampleRate,
		Encoding:           "LINEAR16",
		Language:           session.TargetLanguage,
		AutoDetectLanguage: autoDetect,
	}

	events, err := c.hub.conversations.ProcessUtterance(ctx, session, data, config)
	if err != nil {
		if errors.Is(err, entities.ErrSessionNotActive) {
			c.sendError(session.ID, protocol.ErrCodeSessionClosed, "session is no longer active")
			return
		}
		c.logger.Error("Failed to process utterance", zap.Error(err))
		c.sendError(session.ID, protocol.ErrCodeInternal, "failed to process audio")
		return
	}

	go c.streamResults(ctx, session.ID, events)
}

// streamResults converts pipeline events into wire envelopes. A cancelled
// session context ends the loop; late results are discarded with it.
func (c *Client) streamResults(ctx context.Context, sessionID string, events <-chan usecase.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.forwardEvent(sessionID, event)
		}
	}
}

func (c *Client) forwardEvent(sessionID string, event usecase.Event) {
	switch {
	case event.Transcript != nil:
		msgType := protocol.MessageTypeTranscriptPartial
		if event.Transcript.Final {
			msgType = protocol.MessageTypeTranscriptFinal
		}
		env, err := protocol.NewEnvelope(msgType, sessionID, protocol.TranscriptPayload{
			Text:       event.Transcript.Text,
			Confidence: event.Transcript.Confidence,
			Final:      event.Transcript.Final,
		})
		if err == nil {
			c.sendEnvelope(env)
		}

	case event.Delta != nil && event.Delta.Done:
		metrics.UtterancesProcessed.WithLabelValues("completed").Inc()
		env, err := protocol.NewEnvelope(protocol.MessageTypeAssistantDone, sessionID, protocol.AssistantDonePayload{
			TokensUsed: event.Delta.TokensUsed,
		})
		if err == nil {
			c.sendEnvelope(env)
		}

	case event.Delta != nil:
		env, err := protocol.NewEnvelope(protocol.MessageTypeAssistantDelta, sessionID, protocol.AssistantDeltaPayload{
			Text: event.Delta.Text,
		})
		if err == nil {
			c.sendEnvelope(env)
		}

	case event.Err != nil:
		metrics.UtterancesProcessed.WithLabelValues("failed").Inc()
		c.sendError(sessionID, protocol.ErrCodeInternal, event.Err.Error())
	}
}

func (c *Client) sendError(sessionID, code, message string) {
	env := protocol.NewErrorEnvelope(sessionID, code, message, "")
	c.recordReply(env)
	c.sendEnvelope(env)
}

func (c *Client) recordReply(env *protocol.Envelope) {
	if env.Type != protocol.MessageTypeError {
		return
	}
	var payload protocol.ErrorPayload
	if err := env.DecodePayload(&payload); err == nil {
		metrics.ProtocolErrors.WithLabelValues(payload.Code).Inc()
	}
}

// sendEnvelope queues an envelope without ever blocking the caller. A slow
// consumer loses messages rather than stalling the pipeline.
func (c *Client) sendEnvelope(env *protocol.Envelope) {
	raw, err := env.Encode()
	if err != nil {
		c.logger.Error("Failed to encode envelope", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: raw}:
	default:
		c.logger.Warn("Dropping outbound message, send buffer full",
			zap.String("type", string(env.Type)))
	}
}
