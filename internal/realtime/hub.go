package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	broadcastQueue = 64
)

// ErrHubStopped is returned by ServeWS once Run has returned.
var ErrHubStopped = errors.New("realtime hub stopped")

type subscription struct {
	topic string
	conn  *websocket.Conn
}

type message struct {
	topic string
	data  []byte
}

// Hub fans messages out to the WebSocket clients subscribed to a topic.
type Hub struct {
	topics     map[string]map[*websocket.Conn]struct{}
	register   chan subscription
	unregister chan subscription
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewHub constructs a Hub. allowOrigin decides which browser origins may
// subscribe; nil accepts same-origin requests only.
func NewHub(logger *slog.Logger, allowOrigin func(origin string) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		topics:     make(map[string]map[*websocket.Conn]struct{}),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		broadcast:  make(chan message, broadcastQueue),
		done:       make(chan struct{}),
		logger:     logger,
	}
	if allowOrigin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		}
	}
	return h
}

// Run processes subscribe, unsubscribe and broadcast events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for topic, conns := range h.topics {
				for conn := range conns {
					_ = conn.Close()
				}
				delete(h.topics, topic)
			}
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			conns, ok := h.topics[sub.topic]
			if !ok {
				conns = make(map[*websocket.Conn]struct{})
				h.topics[sub.topic] = conns
			}
			conns[sub.conn] = struct{}{}
			h.mu.Unlock()
		case sub := <-h.unregister:
			h.mu.Lock()
			h.remove(sub.topic, sub.conn)
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.topics[msg.topic] {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					h.remove(msg.topic, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes conn and drops it from topic. Callers hold h.mu.
func (h *Hub) remove(topic string, conn *websocket.Conn) {
	conns, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	_ = conn.Close()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.topics, topic)
	}
}

// BroadcastTopic queues msg for the subscribers of topic. When the queue is
// full the message is dropped rather than blocking the caller.
func (h *Hub) BroadcastTopic(topic string, msg []byte) {
	select {
	case h.broadcast <- message{topic: topic, data: msg}:
	default:
		h.logger.Warn("realtime broadcast dropped", "topic", topic)
	}
}

// Subscribers reports the number of clients subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// ServeWS upgrades the request and subscribes the connection to topic until
// the client disconnects or the request context ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topic string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sub := subscription{topic: topic, conn: conn}

	select {
	case h.register <- sub:
	case <-h.done:
		_ = conn.Close()
		return ErrHubStopped
	case <-r.Context().Done():
		return conn.Close()
	}

	// Drain client frames; a read error means the client went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- sub:
	case <-h.done:
	case <-r.Context().Done():
	}
	return nil
}
