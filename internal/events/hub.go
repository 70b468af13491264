package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventType names a pushed notification
type EventType string

const (
	EventMatchStored EventType = "match:stored"
	EventSyncDone    EventType = "sync:done"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBacklog = 16
)

// Event is the JSON frame sent to websocket clients
type Event struct {
	Type      EventType `json:"type"`
	MatchID   string    `json:"match_id,omitempty"`
	Placement int       `json:"placement,omitempty"`
	Stored    int       `json:"stored,omitempty"`
}

// Publisher delivers events to a user's live connections
type Publisher interface {
	Publish(userID int64, ev Event)
}

// Hub tracks websocket connections per user
type Hub struct {
	mu       sync.Mutex
	clients  map[int64]map[*client]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

type client struct {
	conn   *websocket.Conn
	userID int64
	send   chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates an empty hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[int64]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the frontend origin; the token query parameter authenticates
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithField("component", "events"),
	}
}

// Serve upgrades the request and streams events to userID until the peer goes away.
// The caller must have authenticated the request.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan Event, sendBacklog),
		done:   make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	go h.writeLoop(c)
	h.readLoop(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.log.WithFields(logrus.Fields{"user_id": c.userID, "conns": len(set)}).Debug("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
	c.conn.Close()
}

// readLoop discards inbound frames and returns on close or error
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				h.log.WithError(err).WithField("user_id", c.userID).Debug("write failed")
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// Publish sends ev to every connection of userID.
// Slow connections drop the event rather than block the caller.
func (h *Hub) Publish(userID int64, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- ev:
		default:
			h.log.WithFields(logrus.Fields{"user_id": userID, "type": ev.Type}).Warn("event dropped, client backlog full")
		}
	}
}

// Clients returns the number of live connections for userID
func (h *Hub) Clients(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
			c.conn.Close()
		}
	}
}

// Discard is a Publisher that drops every event
type Discard struct{}

// Publish implements Publisher
func (Discard) Publish(int64, Event) {}
