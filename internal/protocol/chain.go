package protocol

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error is a processing failure that maps onto a wire error code. Handlers
// return it when the failure should reach the client with a specific code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a coded processing error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Handler processes one inbound envelope and optionally produces a direct
// reply. Additional asynchronous replies go out through the connection's
// send path, not the return value.
type Handler func(ctx context.Context, env *Envelope) (*Envelope, error)

// AuthFunc decides whether an inbound envelope is allowed to proceed past
// the authentication stage.
type AuthFunc func(env *Envelope) error

// Chain runs every inbound text message through the fixed
// validate, authenticate, dispatch sequence. Failures at any stage turn into
// error envelopes; the chain never asks for the connection to be closed.
type Chain struct {
	authenticate AuthFunc
	handlers     map[MessageType]Handler
	logger       *zap.Logger
}

// NewChain creates a processing chain. A nil authenticate admits everything.
func NewChain(authenticate AuthFunc, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		authenticate: authenticate,
		handlers:     make(map[MessageType]Handler),
		logger:       logger,
	}
}

// Handle registers the handler for a message type. Registering twice replaces
// the previous handler.
func (c *Chain) Handle(msgType MessageType, handler Handler) {
	c.handlers[msgType] = handler
}

// Process runs one raw text message through the chain and returns the reply
// envelope, which may be nil when the handler has nothing synchronous to say.
func (c *Chain) Process(ctx context.Context, raw []byte) *Envelope {
	env, err := Decode(raw)
	if err != nil {
		c.logger.Debug("Rejected malformed message", zap.Error(err))
		return NewErrorEnvelope("", ErrCodeInvalidMessage, "message failed validation", err.Error())
	}

	if c.authenticate != nil {
		if err := c.authenticate(env); err != nil {
			c.logger.Debug("Rejected unauthenticated message",
				zap.String("type", string(env.Type)),
				zap.Error(err))
			return NewErrorEnvelope(env.SessionID, ErrCodeNotAuthenticated, "authentication required", err.Error())
		}
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		return NewErrorEnvelope(env.SessionID, ErrCodeUnsupportedType,
			fmt.Sprintf("unsupported message type: %s", env.Type), "")
	}

	reply, err := handler(ctx, env)
	if err != nil {
		var coded *Error
		if errors.As(err, &coded) {
			return NewErrorEnvelope(env.SessionID, coded.Code, coded.Message, "")
		}
		c.logger.Error("Message handler failed",
			zap.String("type", string(env.Type)),
			zap.Error(err))
		return NewErrorEnvelope(env.SessionID, ErrCodeInternal, "internal error", "")
	}
	return reply
}
