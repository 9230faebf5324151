// Package websocket streams provisioning outcomes to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingEvery    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only and carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProvisionEvent is one delivery outcome on the live feed. Type is
// "provision_" followed by the outcome.
type ProvisionEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	WebhookID  string    `json:"webhook_id,omitempty"`
	Identity   string    `json:"identity,omitempty"`
	Outcome    string    `json:"outcome"`
	Region     string    `json:"region,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMs int       `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Hub fans ProvisionEvents out to connected feed subscribers. The set of
// subscribers is owned by the Run goroutine.
type Hub struct {
	events  chan []byte
	joins   chan *subscriber
	leaves  chan *subscriber
	stopped chan struct{}
	count   atomic.Int64
	logger  *slog.Logger
}

type subscriber struct {
	conn   *websocket.Conn
	outbox chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		events:  make(chan []byte, sendBuffer),
		joins:   make(chan *subscriber),
		leaves:  make(chan *subscriber),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run serves joins, leaves and events until ctx is done, then closes every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	subs := make(map[*subscriber]struct{})
	drop := func(s *subscriber) {
		if _, ok := subs[s]; !ok {
			return
		}
		delete(subs, s)
		close(s.outbox)
		h.count.Store(int64(len(subs)))
	}

	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				drop(s)
			}
			return

		case s := <-h.joins:
			subs[s] = struct{}{}
			h.count.Store(int64(len(subs)))
			h.logger.Debug("feed subscriber joined", "subscribers", len(subs))

		case s := <-h.leaves:
			drop(s)
			h.logger.Debug("feed subscriber left", "subscribers", len(subs))

		case msg := <-h.events:
			for s := range subs {
				select {
				case s.outbox <- msg:
				default:
					h.logger.Warn("feed subscriber too slow, disconnecting")
					drop(s)
				}
			}
		}
	}
}

// Broadcast queues an event for every subscriber. It never blocks.
func (h *Hub) Broadcast(event ProvisionEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode feed event", "error", err, "id", event.ID)
		return
	}

	select {
	case h.events <- msg:
	default:
		h.logger.Warn("feed queue full, dropping event", "id", event.ID, "outcome", event.Outcome)
	}
}

// HandleWebSocket upgrades the request and subscribes the connection to the feed.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s := &subscriber{conn: conn, outbox: make(chan []byte, sendBuffer)}

	select {
	case h.joins <- s:
	case <-h.stopped:
		conn.Close()
		return
	}

	go h.write(s)
	go h.read(s)
}

// ClientCount returns the number of feed subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// read discards client frames; it exists to see pongs and disconnects.
func (h *Hub) read(s *subscriber) {
	defer func() {
		select {
		case h.leaves <- s:
		case <-h.stopped:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(s *subscriber) {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-s.outbox:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
			kind, data = websocket.PingMessage, nil
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
