// Package broadcast fans out order events to connected kitchen displays.
// Delivery is at-most-once per subscriber with no replay: a display that
// connects late relies on its initial snapshot fetch.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// EventType classifies an order event frame.
type EventType string

const (
	EventOrderCreated   EventType = "orderCreated"
	EventStatusChanged  EventType = "statusChanged"
	EventOrderCancelled EventType = "orderCancelled"
)

// Event is one frame pushed to kitchen displays.
type Event struct {
	Type    EventType   `json:"type"`
	OrderID string      `json:"orderId"`
	Order   *repo.Order `json:"data"`
}

const defaultBuffer = 64

// Subscriber receives one tenant's event stream.
type Subscriber struct {
	tenantID string
	events   chan Event
	hub      *Hub
	once     sync.Once
}

// Events returns the subscriber's stream. The channel is closed when the
// subscriber unsubscribes or is dropped for falling behind.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close detaches the subscriber from the hub.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Hub routes order events to all live subscribers of a tenant. One producer
// per tenant (the order mutation path) writes under the hub lock, so
// subscribers observe events in emission order.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*Subscriber]struct{}
	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(logger *slog.Logger, metricRegistry *metrics.Metrics, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:    map[string]map[*Subscriber]struct{}{},
		buffer:  buffer,
		logger:  logger.With("component", "broadcast"),
		metrics: metricRegistry,
	}
}

// Subscribe attaches a new kitchen display to the tenant's stream.
func (h *Hub) Subscribe(tenantID string) *Subscriber {
	sub := &Subscriber{
		tenantID: tenantID,
		events:   make(chan Event, h.buffer),
		hub:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = map[*Subscriber]struct{}{}
	}
	h.subs[tenantID][sub] = struct{}{}
	if h.metrics != nil {
		h.metrics.KDSSubscribers.WithLabelValues(tenantID).Inc()
	}
	return sub
}

// Publish delivers the event to every live subscriber of the tenant. A
// subscriber whose buffer is full is disconnected rather than blocking the
// producer; it must reconnect and re-fetch the snapshot.
func (h *Hub) Publish(tenantID string, evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.BroadcastEvents.WithLabelValues(string(evt.Type)).Inc()
	}

	for sub := range h.subs[tenantID] {
		select {
		case sub.events <- evt:
		default:
			h.logger.Warn("subscriber buffer overflow, dropping connection", "tenant_id", tenantID)
			if h.metrics != nil {
				h.metrics.SubscriberDrops.WithLabelValues(tenantID).Inc()
			}
			h.detachLocked(sub)
		}
	}
}

// SubscriberCount reports live subscribers for a tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tenantID])
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(sub)
}

func (h *Hub) detachLocked(sub *Subscriber) {
	set := h.subs[sub.tenantID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.tenantID)
	}
	if h.metrics != nil {
		h.metrics.KDSSubscribers.WithLabelValues(sub.tenantID).Dec()
	}
	sub.once.Do(func() { close(sub.events) })
}
