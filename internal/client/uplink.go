package client

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/protocol"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
)

// Uplink is the client side of the conversation wire protocol: one WebSocket
// connection carrying envelope text frames and raw binary audio.
type Uplink struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	// Inbound envelopes for the application.
	inbound chan *protocol.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and authenticates the uplink. token may be empty for
// unauthenticated development connections.
func Dial(url, token string, logger *zap.Logger) (*Uplink, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	u := &Uplink{
		conn:    conn,
		logger:  logger,
		inbound: make(chan *protocol.Envelope, 32),
		done:    make(chan struct{}),
	}
	go u.readLoop()
	go u.heartbeatLoop()
	return u, nil
}

// Inbound returns the channel of server envelopes. Closed when the
// connection goes away.
func (u *Uplink) Inbound() <-chan *protocol.Envelope { return u.inbound }

// Done is closed when the uplink shuts down.
func (u *Uplink) Done() <-chan struct{} { return u.done }

// SendEnvelope writes one envelope as a text frame.
func (u *Uplink) SendEnvelope(env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	u.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return u.conn.WriteMessage(websocket.TextMessage, raw)
}

// SendAudio ships one complete utterance as a binary frame.
func (u *Uplink) SendAudio(pcm []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	u.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return u.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// StartSession asks the server to open a conversation session.
func (u *Uplink) StartSession(targetLanguage string, autoDetect bool) error {
	env, err := protocol.NewEnvelope(protocol.MessageTypeSessionStart, "", protocol.SessionStartPayload{
		TargetLanguage:     targetLanguage,
		AutoDetectLanguage: autoDetect,
	})
	if err != nil {
		return err
	}
	return u.SendEnvelope(env)
}

// EndSession asks the server to close the session.
func (u *Uplink) EndSession(sessionID string) error {
	env, err := protocol.NewEnvelope(protocol.MessageTypeSessionEnd, sessionID, nil)
	if err != nil {
		return err
	}
	return u.SendEnvelope(env)
}

// Close tears the connection down.
func (u *Uplink) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.done)
		u.writeMu.Lock()
		u.conn.SetWriteDeadline(time.Now().Add(writeWait))
		u.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		u.writeMu.Unlock()
		err = u.conn.Close()
	})
	return err
}

func (u *Uplink) readLoop() {
	defer close(u.inbound)
	defer u.Close()

	for {
		_, raw, err := u.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				u.logger.Error("Uplink read failed", zap.Error(err))
			}
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			u.logger.Warn("Dropping malformed server message", zap.Error(err))
			continue
		}
		select {
		case u.inbound <- env:
		case <-u.done:
			return
		}
	}
}

func (u *Uplink) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			env, err := protocol.NewEnvelope(protocol.MessageTypeHeartbeat, "", nil)
			if err != nil {
				continue
			}
			if err := u.SendEnvelope(env); err != nil {
				u.logger.Warn("Heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}
