// Package websocket pushes live events (notifications, adherence changes) to
// the connected clients of each user.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/coelhotv/meus-remedios/internal/platform/auth"
	"github.com/coelhotv/meus-remedios/internal/platform/notification"
)

const (
	EventNotification     = "notification"
	EventAdherenceChanged = "adherence.changed"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage lets a client narrow the event types it receives. A client
// with no filter receives everything.
type ClientMessage struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	mu     sync.Mutex
	filter map[string]bool
}

func newClient(userID string) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, Send: make(chan []byte, sendBuffer)}
}

func (c *Client) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.filter) == 0 || c.filter[eventType]
}

func (c *Client) apply(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		if c.filter == nil {
			c.filter = make(map[string]bool)
		}
		for _, t := range msg.Types {
			c.filter[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.filter, t)
		}
	}
}

// Hub tracks connected clients per user.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
	now   func() time.Time
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]map[*Client]struct{}), now: time.Now}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[*Client]struct{})
	}
	h.users[c.UserID][c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Repeated calls are no-ops.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.users[c.UserID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.users, c.UserID)
	}
	close(c.Send)
}

// Publish sends an event to every client of userID that wants its type and
// returns how many clients it was queued for. Clients with a full buffer
// miss the event.
func (h *Hub) Publish(userID, eventType string, data interface{}) int {
	ev := Event{Type: eventType, Timestamp: h.now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return 0
		}
		ev.Data = raw
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	queued := 0
	for c := range h.users[userID] {
		if !c.wants(eventType) {
			continue
		}
		select {
		case c.Send <- msg:
			queued++
		default:
		}
	}
	return queued
}

// AdherenceChanged tells the user's clients to refresh derived views.
func (h *Hub) AdherenceChanged(userID string) {
	h.Publish(userID, EventAdherenceChanged, nil)
}

// Send pushes a notification to the user's open clients. It never fails:
// users without a live connection still see the notification in history.
func (h *Hub) Send(_ context.Context, n *notification.Notification) error {
	h.Publish(n.UserID, EventNotification, n)
	return nil
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts connections from the given origins; an empty list or
// "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws", h.Connect)
}

func (h *Handler) Connect(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		zerolog.Ctx(c.Request().Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := newClient(uid)
	h.hub.Register(client)
	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()
	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		client.apply(msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
