// Package broadcast fans session snapshots out to every client following
// the same session, over websockets.
//
// The server publishes each accepted write to a Hub. A Follower on the
// client side hands received snapshots to a Receiver, skipping snapshots
// it wrote itself. There is no conflict resolution: the last message wins.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/actsim/internal/sim"
)

// Path is the websocket endpoint served by the Hub.
const Path = "/ws"

// SessionParam is the query parameter naming the session to follow.
const SessionParam = "session"

const (
	sendBuffer   = 16
	writeWait    = 10 * time.Second
	maxReadBytes = 4096
)

// Message is one broadcast snapshot.
type Message struct {
	// Origin is the client id of the writer, empty if unknown.
	Origin    string    `json:"origin"`
	SessionID string    `json:"sessionId"`
	State     sim.State `json:"state"`
}

type client struct {
	session string
	conn    *websocket.Conn
	send    chan []byte
}

type publication struct {
	session string
	data    []byte
}

type countRequest struct {
	session string
	reply   chan int
}

// Hub tracks websocket subscribers per session. All subscriber
// bookkeeping happens on the goroutine running Run.
type Hub struct {
	register   chan *client
	unregister chan *client
	publish    chan publication
	count      chan countRequest
	done       chan struct{}

	sessions map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub. Run must be called before it serves subscribers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		publish:    make(chan publication, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		sessions:   make(map[string]map[*client]struct{}),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:     logger,
	}
}

// Run processes registrations and publications until ctx is cancelled,
// then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, clients := range h.sessions {
			for c := range clients {
				close(c.send)
			}
		}
		h.sessions = nil
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients, ok := h.sessions[c.session]
			if !ok {
				clients = make(map[*client]struct{})
				h.sessions[c.session] = clients
			}
			clients[c] = struct{}{}
			h.logger.Debug("subscriber joined", "session_id", c.session, "subscribers", len(clients))
		case c := <-h.unregister:
			h.drop(c)
		case p := <-h.publish:
			for c := range h.sessions[p.session] {
				select {
				case c.send <- p.data:
				default:
					h.logger.Warn("subscriber too slow, dropping", "session_id", c.session)
					h.drop(c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.sessions[req.session])
		}
	}
}

func (h *Hub) drop(c *client) {
	clients, ok := h.sessions[c.session]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.sessions, c.session)
	}
}

// Publish queues msg for every subscriber of msg.SessionID. It returns an
// error once the hub has stopped.
func (h *Hub) Publish(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broadcast: encode message: %w", err)
	}
	select {
	case h.publish <- publication{session: msg.SessionID, data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("broadcast: hub stopped")
	}
}

// Subscribers returns how many clients follow sessionID, or 0 once the
// hub has stopped.
func (h *Hub) Subscribers(sessionID string) int {
	req := countRequest{session: sessionID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// ServeWS upgrades the request and subscribes the connection to the
// session named by the "session" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get(SessionParam)
	if session == "" {
		http.Error(w, "missing session query parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{session: session, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	h.readPump(c)
}

// readPump discards inbound frames and unregisters the client once the
// connection fails.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxReadBytes)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
