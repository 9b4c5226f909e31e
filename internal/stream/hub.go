// Package stream broadcasts settlement events to websocket
// subscribers. Delivery is best-effort: slow or broken subscribers are
// dropped, never blocked on.
package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/observability"
)

const (
	writeTimeout = 5 * time.Second

	// sendBufferSize bounds the per-subscriber backlog. A subscriber
	// that falls this far behind is dropped rather than waited on.
	sendBufferSize = 64
)

// SettlementEvent is the wire form of one settled swap.
type SettlementEvent struct {
	Type        string  `json:"type"`
	InputAsset  string  `json:"input_asset"`
	OutputAsset string  `json:"output_asset"`
	TimestampMs int64   `json:"timestamp_ms"`
	AmountIn    uint64  `json:"amount_in"`
	AmountOut   uint64  `json:"amount_out"`
	Price       float64 `json:"price"`
}

// subscriber owns one connection. All socket writes happen on its
// writeLoop goroutine; Publish only feeds the send channel.
type subscriber struct {
	conn *websocket.Conn
	send chan SettlementEvent
}

// Hub fans settlement points out to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[stream] upgrade failed: %v", err)
		return
	}

	s := &subscriber{
		conn: conn,
		send: make(chan SettlementEvent, sendBufferSize),
	}
	h.add(s)

	go h.writeLoop(s)

	// Read loop only drains control frames and detects close.
	go func() {
		defer h.remove(s)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop drains the subscriber's send channel onto its socket. It
// exits when the channel is closed by remove or when a write fails.
func (h *Hub) writeLoop(s *subscriber) {
	for event := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteJSON(event); err != nil {
			h.logger.Printf("[stream] dropping subscriber: %v", err)
			h.remove(s)
			return
		}
	}
}

// Publish sends the settlement point to every subscriber. Satisfies
// the executor's publisher contract. Never blocks on a socket: each
// subscriber gets a buffered channel, and one whose buffer is full is
// dropped on the spot.
func (h *Hub) Publish(p *domain.SettlementPoint) {
	event := SettlementEvent{
		Type:        "settlement",
		InputAsset:  string(p.InputAsset),
		OutputAsset: string(p.OutputAsset),
		TimestampMs: p.TimestampMs,
		AmountIn:    p.AmountIn,
		AmountOut:   p.AmountOut,
		Price:       p.Price,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.send <- event:
		default:
			h.logger.Printf("[stream] dropping slow subscriber: %d events behind", sendBufferSize)
			h.removeLocked(s)
		}
	}
	observability.RecordStreamPublish()
	observability.UpdateStreamSubscribers(len(h.subs))
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.removeLocked(s)
	}
	observability.UpdateStreamSubscribers(0)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	observability.UpdateStreamSubscribers(len(h.subs))
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
	observability.UpdateStreamSubscribers(len(h.subs))
}

// removeLocked deregisters the subscriber and closes its send channel,
// which ends its writeLoop. Callers must hold h.mu; the channel is
// only ever sent to under the same lock, so closing here is safe.
func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
		s.conn.Close()
	}
}
