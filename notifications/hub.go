// Package notifications fans out events to connected clients and polls for
// unread notifications
package notifications

import (
	"sync"

	"skyweb/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skyweb_hub_subscribers",
		Help: "Number of subscribers connected to the event hub",
	})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyweb_hub_events_dropped_total",
		Help: "Events dropped because a subscriber channel was full",
	}, []string{"event"})
)

// Publisher accepts events for delivery
type Publisher interface {
	Publish(event models.Event) int
}

// Hub keeps a channel per subscriber key. Sends never block, a subscriber
// that does not keep up misses events.
type Hub struct {
	sync.RWMutex
	clients map[string]chan models.Event
	closed  bool
}

var _ Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]chan models.Event),
	}
}

// Subscribe registers key and returns its event channel. Subscribing with a
// key that is already present replaces and closes the old channel.
func (h *Hub) Subscribe(key string, buffer int) <-chan models.Event {
	h.Lock()
	defer h.Unlock()

	ch := make(chan models.Event, buffer)
	if h.closed {
		close(ch)
		return ch
	}

	if old, ok := h.clients[key]; ok {
		close(old)
	} else {
		subscribers.Inc()
	}
	h.clients[key] = ch

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(h.clients),
	}).Info("Adding client to hub")
	return ch
}

// Unsubscribe removes key and closes its channel
func (h *Hub) Unsubscribe(key string) {
	h.Lock()
	defer h.Unlock()

	client, ok := h.clients[key]
	if !ok {
		return
	}
	close(client)
	delete(h.clients, key)
	subscribers.Dec()

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(h.clients),
	}).Info("Removed client from hub")
}

// Publish sends event to every subscriber and returns how many received it
func (h *Hub) Publish(event models.Event) int {
	h.RLock()
	defer h.RUnlock()

	delivered := 0
	for key, client := range h.clients {
		if h.deliver(key, client, event) {
			delivered++
		}
	}
	return delivered
}

// Send delivers event to a single subscriber
func (h *Hub) Send(key string, event models.Event) bool {
	h.RLock()
	defer h.RUnlock()

	client, ok := h.clients[key]
	if !ok {
		return false
	}
	return h.deliver(key, client, event)
}

func (h *Hub) deliver(key string, client chan models.Event, event models.Event) bool {
	select {
	case client <- event: // Non-blocking send
		return true
	default:
		eventsDropped.WithLabelValues(event.EventName()).Inc()
		log.WithFields(log.Fields{
			"key":   key,
			"event": event.EventName(),
		}).Warn("Client channel full, skipping event")
		return false
	}
}

func (h *Hub) Count() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Shutdown closes every subscriber channel. Later subscriptions get a closed
// channel.
func (h *Hub) Shutdown() {
	log.Info("Shutting down hub")
	h.Lock()
	defer h.Unlock()

	for key, client := range h.clients {
		close(client)
		delete(h.clients, key)
		subscribers.Dec()
	}
	h.closed = true
}
