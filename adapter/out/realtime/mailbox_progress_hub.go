// Package realtime fans batch progress out to connected SSE clients.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

const (
	EventProgress  = "progress"
	EventBatchDone = "batch_done"

	clientBuffer = 256
)

// Event is one message delivered to a subscriber.
type Event struct {
	Seq       int64            `json:"seq"`
	Type      string           `json:"type"`
	Data      *domain.Progress `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// Hub implements out.ProgressPublisher for in-process subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan *Event]string // channel -> batch filter, "" for all
	log     zerolog.Logger

	heartbeatInterval time.Duration

	seq     int64
	sent    int64
	dropped int64
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:           make(map[chan *Event]string),
		log:               log.With().Str("component", "progress_hub").Logger(),
		heartbeatInterval: 30 * time.Second,
	}
}

// Client is one subscription.
type Client struct {
	BatchID string
	Events  <-chan *Event
	Done    chan struct{}

	ch   chan *Event
	hub  *Hub
	once sync.Once
}

// Subscribe registers a client for batchID, or for every batch when empty.
func (h *Hub) Subscribe(batchID string) *Client {
	ch := make(chan *Event, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = batchID
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Str("batch_id", batchID).Int("total_connections", total).Msg("client subscribed")
	return &Client{BatchID: batchID, Events: ch, Done: make(chan struct{}), ch: ch, hub: h}
}

// Close unsubscribes the client. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.Done)
		c.hub.mu.Lock()
		delete(c.hub.clients, c.ch)
		c.hub.mu.Unlock()
		close(c.ch)
	})
}

// HeartbeatInterval returns how often idle streams should send a comment line.
func (c *Client) HeartbeatInterval() time.Duration {
	return c.hub.heartbeatInterval
}

// PublishProgress delivers p to matching subscribers without blocking.
// A subscriber whose buffer is full misses the message.
func (h *Hub) PublishProgress(ctx context.Context, p *domain.Progress) error {
	event := &Event{
		Seq:       atomic.AddInt64(&h.seq, 1),
		Type:      EventProgress,
		Data:      p,
		Timestamp: time.Now().UTC(),
	}
	if p.Done {
		event.Type = EventBatchDone
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, filter := range h.clients {
		if filter != "" && filter != p.BatchID {
			continue
		}
		select {
		case ch <- event:
			atomic.AddInt64(&h.sent, 1)
		default:
			atomic.AddInt64(&h.dropped, 1)
			h.log.Warn().
				Str("batch_id", p.BatchID).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// HubMetrics holds delivery counters.
type HubMetrics struct {
	Connections     int   `json:"connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
}

func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubMetrics{
		Connections:     n,
		MessagesSent:    atomic.LoadInt64(&h.sent),
		MessagesDropped: atomic.LoadInt64(&h.dropped),
	}
}

// SerializeEvent renders the data line of an SSE message.
func SerializeEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

var _ out.ProgressPublisher = (*Hub)(nil)
