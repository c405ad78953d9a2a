package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/angelstreet/streamwatch/internal/http/handlers"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/service/monitor"
)

func setupEventsRouter(hub *monitor.Hub) (*handlers.EventsHandler, *chi.Mux) {
	handler := handlers.NewEventsHandler(hub, quietLogger())
	router := chi.NewRouter()
	handler.RegisterSSE(router)
	return handler, router
}

func notification(sessionID, deviceID, kind string) playback.Notification {
	return playback.Notification{
		Kind: kind,
		Session: playback.Snapshot{
			ID:       sessionID,
			DeviceID: deviceID,
		},
		At: time.Now(),
	}
}

func TestEventsSSEEstablishesConnection(t *testing.T) {
	hub := monitor.NewHub(10, quietLogger())
	defer hub.Close()
	_, router := setupEventsRouter(hub)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()
	<-done

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), ":connected")
}

func TestEventsSSEDeliversNotifications(t *testing.T) {
	hub := monitor.NewHub(10, quietLogger())
	defer hub.Close()
	_, router := setupEventsRouter(hub)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(notification("sess-a", "dev-1", "stuck"))
	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, "event: stuck")
	assert.Contains(t, body, `"id":"sess-a"`)
}

func TestEventsSSEFiltersBySession(t *testing.T) {
	hub := monitor.NewHub(10, quietLogger())
	defer hub.Close()
	_, router := setupEventsRouter(hub)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/events?session_id=sess-a", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(notification("sess-a", "dev-1", "state"))
	hub.Publish(notification("sess-b", "dev-2", "state"))
	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, `"id":"sess-a"`)
	assert.NotContains(t, body, `"id":"sess-b"`)
}

func TestEventsSSESendsHeartbeats(t *testing.T) {
	hub := monitor.NewHub(10, quietLogger())
	defer hub.Close()
	handler, router := setupEventsRouter(hub)
	handler.SetHeartbeatInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()
	<-done

	assert.Contains(t, rec.Body.String(), ":heartbeat")
}
