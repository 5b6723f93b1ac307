package reminders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/pkg/logger"
)

// ErrNoListener is returned by Hub.Notify when the owner has no open
// connection.
var ErrNoListener = errors.New("no open in-app connection")

const (
	hubSendBuffer = 16
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
	hubReadLimit  = 512
)

type hubClient struct {
	conn *websocket.Conn
	send chan reminderMessage
}

// Hub pushes in_app reminders to the websocket connections of their owner.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[string]map[*hubClient]struct{}
	closed  bool
}

// NewHub builds a hub that accepts same-host origins until CheckOrigin is
// set.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("reminder-hub")
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log,
		clients:  make(map[string]map[*hubClient]struct{}),
	}
}

// CheckOrigin replaces the upgrade origin policy. Call before serving.
func (h *Hub) CheckOrigin(fn func(*http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

func (h *Hub) Name() string { return "reminder-hub" }

func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()
	return nil
}

// Stop closes every open connection.
func (h *Hub) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
	return nil
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and streams userID's in_app reminders until
// the client goes away or the hub stops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	c := &hubClient{conn: conn, send: make(chan reminderMessage, hubSendBuffer)}
	if !h.add(userID, c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(hubWriteWait))
		return conn.Close()
	}
	h.log.WithField("user_id", userID).Debug("in-app connection opened")

	go h.writePump(c)
	h.readPump(userID, c)
	return nil
}

func (h *Hub) add(userID string, c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) remove(userID string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
	close(c.send)
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Hub) readPump(userID string, c *hubClient) {
	defer h.remove(userID, c)
	c.conn.SetReadLimit(hubReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("user_id", userID).Debug("in-app connection dropped")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Notify queues r on every connection of its owner. A connection whose
// buffer is full misses the message.
func (h *Hub) Notify(_ context.Context, r reminder.Reminder) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[r.UserID]
	if len(set) == 0 {
		return ErrNoListener
	}
	msg := newReminderMessage(r)
	queued := 0
	for c := range set {
		select {
		case c.send <- msg:
			queued++
		default:
			h.log.WithField("user_id", r.UserID).WithField("reminder_id", r.ID).Warn("in-app connection backlogged; message dropped")
		}
	}
	if queued == 0 {
		return fmt.Errorf("all in-app connections of %s are backlogged", r.UserID)
	}
	return nil
}
