// Package monitor fans playback notifications out to live subscribers and
// records them into the event history. It sits between the playback
// controllers (which publish synchronously under their own lock) and the
// SSE handlers and persistence layer (which consume at their own pace), so
// Publish must never block.
package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/angelstreet/streamwatch/internal/playback"
)

// DefaultBufferSize is the per-subscriber channel depth used when the
// configuration does not specify one.
const DefaultBufferSize = 100

// Filter restricts which notifications a subscriber receives. Zero-value
// fields match everything.
type Filter struct {
	// SessionID limits events to a single session.
	SessionID string
	// DeviceID limits events to a single device.
	DeviceID string
	// Kinds limits events to the given publish kinds.
	Kinds []string
}

// Matches reports whether the notification passes the filter.
func (f *Filter) Matches(n playback.Notification) bool {
	if f == nil {
		return true
	}
	if f.SessionID != "" && n.Session.ID != f.SessionID {
		return false
	}
	if f.DeviceID != "" && n.Session.DeviceID != f.DeviceID {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == n.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Subscriber is one live consumer of playback notifications. Events is
// closed when the subscriber is removed from the hub.
type Subscriber struct {
	ID     string
	Filter *Filter
	Events chan playback.Notification
}

// HubStats describes the hub's current load.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Hub distributes playback notifications to subscribers. Delivery is
// best-effort: a subscriber whose channel is full loses the event rather
// than stalling the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	bufferSize int
	logger     *slog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates an event hub. bufferSize is the per-subscriber channel
// depth; values below 1 fall back to DefaultBufferSize.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new consumer. The returned subscriber's Events
// channel receives matching notifications until Unsubscribe or Close.
func (h *Hub) Subscribe(filter *Filter) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Filter: filter,
		Events: make(chan playback.Notification, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Events)
		return sub
	}
	h.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.Events)
	}
}

// Publish delivers a notification to every matching subscriber. It never
// blocks: full channels drop the event. Safe to use as a
// playback.Notifier.
func (h *Hub) Publish(n playback.Notification) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if !sub.Filter.Matches(n) {
			continue
		}
		select {
		case sub.Events <- n:
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber event channel full, dropping event",
				"subscriber_id", sub.ID,
				"session_id", n.Session.ID,
				"kind", n.Kind)
		}
	}
}

// Stats returns a point-in-time view of hub load.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subscribers)
	h.mu.RUnlock()
	return HubStats{
		Subscribers: n,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close removes all subscribers and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.Events)
	}
}
