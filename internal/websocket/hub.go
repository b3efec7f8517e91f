package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/repositories"
	"github.com/sastrawinata/wicara/internal/auth"
	"github.com/sastrawinata/wicara/internal/metrics"
	"github.com/sastrawinata/wicara/internal/protocol"
	"github.com/sastrawinata/wicara/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active client connections.
type Hub struct {
	// Registered clients keyed by connection id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversations *usecase.ConversationService
	sessionRepo   repositories.SessionRepository

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	conversations *usecase.ConversationService,
	sessionRepo repositories.SessionRepository,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		conversations: conversations,
		sessionRepo:   sessionRepo,
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connectionID] = client
			h.mu.Unlock()
			metrics.ActiveConnections.Inc()
			h.logger.Info("Client registered", zap.String("connectionID", client.connectionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connectionID]; ok {
				delete(h.clients, client.connectionID)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.ActiveConnections.Dec()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.connectionID))
		}
	}
}

// ClientCount reports the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles websocket requests from the peer. claims is nil when the
// upgrade request carried no valid token; the connection is still accepted
// and every message is rejected at the authentication stage instead.
func ServeWS(hub *Hub, c echo.Context, claims *auth.JWTClaims, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan WriteData, 256),
		connectionID: uuid.New().String(),
		claims:       claims,
		logger:       logger,
	}
	client.chain = client.buildChain()

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	ready, err := protocol.NewEnvelope(protocol.MessageTypeSessionReady, "", protocol.SessionReadyPayload{
		ConnectionID: client.connectionID,
	})
	if err == nil {
		client.sendEnvelope(ready)
	}

	return nil
}
