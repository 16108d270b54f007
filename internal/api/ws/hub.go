// Package ws is the real-time broadcast layer: it fans preview frames out to
// authenticated subscribers over websocket connections.
package ws

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/observability"
	"github.com/your-org/marina/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// authTimeout bounds how long a connection may sit unauthenticated.
const authTimeout = 30 * time.Second

// Session lifecycle. Frames are delivered only in stateAuthenticated;
// a failed authorization goes straight to stateClosed.
const (
	stateConnecting int32 = iota
	stateUnauthenticated
	stateAuthenticated
	stateClosed
)

// TokenVerifier validates a subscriber's bearer credential.
type TokenVerifier interface {
	VerifyCredential(token string) (int64, error)
}

// Client is one subscriber connection. Frames are queued on send and written
// by a single writer goroutine, so delivery per peer is FIFO.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32
}

func (c *Client) authenticated() bool {
	return c.state.Load() == stateAuthenticated
}

// Hub owns the active session set. Registration, removal and broadcast are
// mutually exclusive over that set; no iteration happens outside the guard.
type Hub struct {
	verifier TokenVerifier

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub(verifier TokenVerifier) *Hub {
	return &Hub{
		verifier:   verifier,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected")

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			var stale []*Client
			for client := range h.clients {
				if !client.authenticated() {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Peer cannot keep up; drop it, not the broadcast.
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range stale {
				h.removeClient(client)
			}
			observability.FramesBroadcast.Inc()
		}
	}
}

// removeClient transitions a session to Closed exactly once.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if ok {
		client.state.Store(stateClosed)
		observability.WSConnections.Dec()
		slog.Debug("ws client disconnected")
	}
}

// ClientCount returns the number of sessions in the active set, in any state.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishFrame fans a preview frame out to every authenticated session.
// Per-peer failures never surface to the caller.
func (h *Hub) PublishFrame(frame *models.PreviewFrame) {
	data, err := json.Marshal(dto.WSImage{
		Type:     dto.WSTypeImage,
		CameraID: frame.CameraID,
		Image:    base64.StdEncoding.EncodeToString(frame.Image),
	})
	if err != nil {
		slog.Error("marshal ws image", "error", err)
		return
	}
	h.broadcast <- data
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	// The session enters Unauthenticated before it becomes visible to the
	// hub or to readPump, so no later transition can be overwritten.
	client.state.Store(stateUnauthenticated)

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump drives the session state machine. The first inbound message must
// be an authorization; after that the loop only watches for disconnect.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(authTimeout))
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return
	}

	var authMsg dto.WSAuthorization
	if err := json.Unmarshal(raw, &authMsg); err != nil || authMsg.Type != dto.WSTypeAuthorization {
		c.reject("first message must be an authorization")
		return
	}

	userID, err := h.verifier.VerifyCredential(authMsg.Token)
	if err != nil {
		c.reject("could not validate credentials")
		return
	}

	c.state.Store(stateAuthenticated)
	_ = c.conn.SetReadDeadline(time.Time{})
	slog.Debug("ws client authenticated", "user_id", userID)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Inbound messages after authorization are ignored; this loop only
		// detects disconnection.
	}
}

// reject writes exactly one typed error frame before the session is torn
// down. The write is synchronous: an unauthenticated session receives no
// broadcasts, so readPump is the only writer here and the frame is on the
// wire before the deferred unregister closes the connection.
func (c *Client) reject(message string) {
	data, err := json.Marshal(dto.WSError{Type: dto.WSTypeError, Message: message})
	if err != nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}
