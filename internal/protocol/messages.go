package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of a conversation wire message
type MessageType string

// Supported message types
const (
	MessageTypeSessionReady      MessageType = "session.ready"
	MessageTypeSessionStart      MessageType = "session.start"
	MessageTypeSessionStarted    MessageType = "session.started"
	MessageTypeSessionEnd        MessageType = "session.end"
	MessageTypeAudioData         MessageType = "audio.data"
	MessageTypeHeartbeat         MessageType = "heartbeat"
	MessageTypePong              MessageType = "pong"
	MessageTypeTranscriptPartial MessageType = "transcript.partial"
	MessageTypeTranscriptFinal   MessageType = "transcript.final"
	MessageTypeAssistantDelta    MessageType = "assistant.delta"
	MessageTypeAssistantDone     MessageType = "assistant.done"
	MessageTypeError             MessageType = "error"
)

// Valid reports whether the type belongs to the closed set of wire types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeSessionReady, MessageTypeSessionStart, MessageTypeSessionStarted,
		MessageTypeSessionEnd, MessageTypeAudioData, MessageTypeHeartbeat,
		MessageTypePong, MessageTypeTranscriptPartial, MessageTypeTranscriptFinal,
		MessageTypeAssistantDelta, MessageTypeAssistantDone, MessageTypeError:
		return true
	}
	return false
}

// Error codes carried in error envelopes
const (
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeUnsupportedType  = "unsupported_type"
	ErrCodeSessionNotFound  = "session_not_found"
	ErrCodeSessionClosed    = "session_closed"
	ErrCodeInternal         = "internal_error"
)

// Envelope is the common frame wrapping every text message in both
// directions. Binary audio frames bypass the envelope entirely.
type Envelope struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an outbound envelope around a payload, stamping a fresh
// message id and the current time. A nil payload is allowed.
func NewEnvelope(msgType MessageType, sessionID string, payload interface{}) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Type:      msgType,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw bytes into an envelope, enforcing the closed type set.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	if !env.Type.Valid() {
		return nil, fmt.Errorf("unknown message type: %s", env.Type)
	}
	return &env, nil
}

// DecodePayload parses the envelope payload into the given value.
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// SessionReadyPayload is sent by the server right after the upgrade.
type SessionReadyPayload struct {
	ConnectionID string `json:"connection_id"`
}

// SessionStartPayload opens a conversation session. An empty TargetLanguage
// with AutoDetectLanguage set lets the transcription backend pick.
type SessionStartPayload struct {
	TargetLanguage     string `json:"target_language,omitempty"`
	AutoDetectLanguage bool   `json:"auto_detect_language,omitempty"`
}

// SessionStartedPayload acknowledges a session.start.
type SessionStartedPayload struct {
	SessionID string `json:"session_id"`
}

// AudioDataPayload carries base64 audio for clients that cannot send binary
// frames.
type AudioDataPayload struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// TranscriptPayload carries a partial or final transcription result.
type TranscriptPayload struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Final      bool    `json:"final"`
}

// AssistantDeltaPayload streams one increment of the assistant reply.
type AssistantDeltaPayload struct {
	Text string `json:"text"`
}

// AssistantDonePayload terminates an assistant reply stream.
type AssistantDonePayload struct {
	TokensUsed int `json:"tokens_used,omitempty"`
}

// ErrorPayload reports a processing failure without closing the connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewErrorEnvelope creates a standardized error envelope.
func NewErrorEnvelope(sessionID, code, message, details string) *Envelope {
	env, _ := NewEnvelope(MessageTypeError, sessionID, ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	})
	return env
}

// NewPongEnvelope answers a heartbeat, echoing the heartbeat's message id so
// the client can correlate round trips.
func NewPongEnvelope(heartbeat *Envelope) *Envelope {
	return &Envelope{
		ID:        heartbeat.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: heartbeat.SessionID,
		Type:      MessageTypePong,
	}
}
