package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/service/monitor"
)

// EventsHandler streams live playback notifications over SSE. It is a raw
// chi handler because the OpenAPI layer buffers responses, which breaks
// event streaming.
type EventsHandler struct {
	hub               *monitor.Hub
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// NewEventsHandler creates an SSE events handler.
func NewEventsHandler(hub *monitor.Hub, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:               hub,
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// SetHeartbeatInterval overrides the SSE heartbeat interval (for testing).
func (h *EventsHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// RegisterSSE registers the SSE endpoint on a chi router.
func (h *EventsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/events", h.handleEvents)
}

func (h *EventsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(parseEventFilter(r))
	defer h.hub.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// Initial comment establishes the stream and triggers onopen in
	// EventSource clients.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush initial SSE frame", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}
		case n, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, n); err != nil {
				h.logger.Error("failed to write SSE event",
					"kind", n.Kind,
					"session_id", n.Session.ID,
					"error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("event flush failed, client likely disconnected",
					"kind", n.Kind,
					"error", err)
				return
			}
		}
	}
}

func parseEventFilter(r *http.Request) *monitor.Filter {
	query := r.URL.Query()
	filter := &monitor.Filter{
		SessionID: query.Get("session_id"),
		DeviceID:  query.Get("device_id"),
	}
	if kinds, ok := query["kind"]; ok {
		filter.Kinds = kinds
	}
	return filter
}

func writeSSEEvent(w http.ResponseWriter, n playback.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data)
	return err
}
