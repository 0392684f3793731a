// Package websocket is the bidirectional user transport. One connection
// serves one chat session; frames mirror the streaming HTTP surface plus
// the operator-side inserts (system notices, agent messages).
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/service"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
	"github.com/PhillHH/chat-agent/pkg/safego"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the frontend host is fixed
	},
}

// Frame types on the wire.
const (
	FrameMessage      = "message"
	FrameChunk        = "chunk"
	FrameDone         = "done"
	FrameSystem       = "system"
	FrameAgentMessage = "agent_message"
	FrameError        = "error"
)

// Frame is one JSON message in either direction. Inbound frames carry the
// user text; outbound frames are typed per the constants above.
type Frame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
	Sender string `json:"sender,omitempty"`
}

// MessageHandler processes one inbound user message. It runs on its own
// goroutine so a long model stream never starves the read loop.
type MessageHandler func(sessionID, text string)

// Client is one connected session socket.
type Client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	logger    *zap.Logger
}

// Hub tracks the active connection per session. A session has at most one
// socket; a reconnect takes over and the stale socket is closed.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	onMessage  MessageHandler
	logger     *zap.Logger
}

// NewHub creates the connection hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Compile-time interface check
var _ service.UserTransport = (*Hub)(nil)

// SetMessageHandler wires inbound user messages to the chat pipeline.
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.onMessage = handler
}

// Run owns the client map until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok {
				close(old.send)
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("WebSocket connected",
				zap.String("session_id", client.sessionID),
			)
		case client := <-h.unregister:
			h.mu.Lock()
			// A takeover already replaced and closed this client.
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket disconnected",
				zap.String("session_id", client.sessionID),
			)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, client := range h.clients {
		close(client.send)
		delete(h.clients, sessionID)
	}
}

// sendFrame delivers one frame to the session's socket. A full send buffer
// drops the frame instead of stalling the model stream. The read lock spans
// the send so the channel cannot be closed mid-attempt.
func (h *Hub) sendFrame(sessionID string, frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return domainErrors.NewInternalError("failed to encode frame: " + err.Error())
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[sessionID]
	if !exists {
		return domainErrors.NewNotFoundError("no active connection for session")
	}

	select {
	case client.send <- data:
		return nil
	default:
		h.logger.Warn("WebSocket send buffer full, dropping frame",
			zap.String("session_id", sessionID),
			zap.String("type", frame.Type),
		)
		return nil
	}
}

// SendChunk delivers one restored text fragment.
func (h *Hub) SendChunk(sessionID, text string) error {
	return h.sendFrame(sessionID, &Frame{Type: FrameChunk, Text: text})
}

// SendDone closes a turn with its outcome status.
func (h *Hub) SendDone(sessionID, status string) error {
	return h.sendFrame(sessionID, &Frame{Type: FrameDone, Status: status})
}

// SendError delivers a turn-level failure notice.
func (h *Hub) SendError(sessionID, text string) error {
	return h.sendFrame(sessionID, &Frame{Type: FrameError, Text: text})
}

// SendSystem implements service.UserTransport.
func (h *Hub) SendSystem(sessionID, text string) error {
	return h.sendFrame(sessionID, &Frame{Type: FrameSystem, Text: text})
}

// SendAgentMessage implements service.UserTransport.
func (h *Hub) SendAgentMessage(sessionID, text, sender string) error {
	return h.sendFrame(sessionID, &Frame{Type: FrameAgentMessage, Text: text, Sender: sender})
}

// Connected reports whether the session has an active socket.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// ClientCount returns the number of active sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and runs the session socket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	client := &Client{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       h,
		logger:    h.logger,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024) // 512KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					zap.String("session_id", c.sessionID),
					zap.Error(err),
				)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Error("Failed to parse frame",
				zap.String("session_id", c.sessionID),
				zap.Error(err),
			)
			continue
		}
		if frame.Text == "" {
			continue
		}

		if c.hub.onMessage != nil {
			// Detach so the read loop keeps answering pings while the
			// turn streams.
			text := frame.Text
			safego.Go(c.logger, "websocket.turn", func() {
				c.hub.onMessage(c.sessionID, text)
			})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
