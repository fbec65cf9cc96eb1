package ledger

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rub-lamp/oracle_layer/internal/logging"
)

const (
	TopicWinners = "winners"

	EventWorthy  = "WORTHY"
	EventClaimed = "CLAIMED"

	heartbeatInterval = 30 * time.Second
	pongWait          = 60 * time.Second
	writeWait         = 10 * time.Second
	sendBuffer        = 16
	maxInboundMessage = 512
)

// Event is pushed to every feed subscriber.
type Event struct {
	Event   string    `json:"event"`
	Topic   string    `json:"topic"`
	Payload Winner    `json:"payload"`
	At      time.Time `json:"at"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans winner events out to websocket subscribers. Subscribers that fall
// behind are dropped.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	closed   bool
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub. Origin checks are left to the CORS layer.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewDiscard("ledger")
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "feed closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go h.writePump(s)
	go h.readPump(s)
}

// Broadcast sends ev to every subscriber and returns how many received it.
func (h *Hub) Broadcast(ev Event) int {
	if ev.Topic == "" {
		ev.Topic = TopicWinners
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Warn("encode feed event")
		return 0
	}

	var delivered int
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- data:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Debug("dropping slow feed subscriber")
		h.unsubscribe(s)
	}
	return delivered
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

func (h *Hub) readPump(s *subscriber) {
	defer h.unsubscribe(s)

	s.conn.SetReadLimit(maxInboundMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
