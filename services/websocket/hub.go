package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pongs and keepalives.
	maxMessageSize = 512

	sendBuffer = 64
)

// Event types pushed to browsers.
const (
	EventNotification = "notification"
	EventTicketStatus = "ticket_status"
)

// Message is the envelope of every pushed event.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// conn is the subset shared by gorilla and Fiber websocket connections.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Client is one open connection of a teacher.
type Client struct {
	hub       *Hub
	conn      conn
	send      chan []byte
	teacherID uint
}

// Hub tracks open connections per teacher and fans events out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uint]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run processes registrations until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.teacherID] == nil {
				h.clients[c.teacherID] = make(map[*Client]struct{})
			}
			h.clients[c.teacherID][c] = struct{}{}
			h.mu.Unlock()
			logrus.WithField("teacher_id", c.teacherID).Debug("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
			logrus.WithField("teacher_id", c.teacherID).Debug("websocket client disconnected")

		case <-h.stop:
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					h.remove(c)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.stop)
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	set := h.clients[c.teacherID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.teacherID)
	}
}

// SendToUser pushes an event to every connection of teacherID. Slow clients are dropped.
func (h *Hub) SendToUser(teacherID uint, eventType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: eventType, Data: data})
	if err != nil {
		logrus.WithError(err).Warn("websocket message marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[teacherID] {
		select {
		case c.send <- payload:
		default:
			h.remove(c)
			logrus.WithField("teacher_id", teacherID).Warn("websocket client too slow, dropped")
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// IsOnline reports whether teacherID has at least one open connection.
func (h *Hub) IsOnline(teacherID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[teacherID]) > 0
}

// ServeWS upgrades a net/http request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, teacherID uint) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := h.attach(ws, teacherID)
	go c.writePump()
	go c.readPump()
}

// ServeFiberWS serves a Fiber websocket connection. It blocks until the peer goes away,
// since the Fiber connection is only valid inside its handler.
func (h *Hub) ServeFiberWS(ws *fiberws.Conn, teacherID uint) {
	c := h.attach(ws, teacherID)
	go c.writePump()
	c.readPump()
}

func (h *Hub) attach(ws conn, teacherID uint) *Client {
	c := &Client{hub: h, conn: ws, send: make(chan []byte, sendBuffer), teacherID: teacherID}
	select {
	case h.register <- c:
	case <-h.stop:
		close(c.send)
	}
	return c
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("teacher_id", c.teacherID).Debug("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
