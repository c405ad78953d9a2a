package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/streamwatch/internal/models"
	"github.com/angelstreet/streamwatch/internal/playback"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func note(sessionID, deviceID, kind string) playback.Notification {
	return playback.Notification{
		Kind: kind,
		Session: playback.Snapshot{
			ID:        sessionID,
			DeviceID:  deviceID,
			Lifecycle: playback.LifecycleReady,
			Transport: playback.TransportSegmented,
			Active:    true,
		},
		At: time.Now(),
	}
}

func TestHubDeliversToMatchingSubscribers(t *testing.T) {
	hub := NewHub(10, discardLogger())
	defer hub.Close()

	all := hub.Subscribe(nil)
	onlyA := hub.Subscribe(&Filter{SessionID: "sess-a"})
	onlyStuck := hub.Subscribe(&Filter{Kinds: []string{"stuck"}})

	hub.Publish(note("sess-a", "dev-1", "state"))
	hub.Publish(note("sess-b", "dev-2", "stuck"))

	assert.Len(t, all.Events, 2)
	require.Len(t, onlyA.Events, 1)
	assert.Equal(t, "sess-a", (<-onlyA.Events).Session.ID)
	require.Len(t, onlyStuck.Events, 1)
	assert.Equal(t, "stuck", (<-onlyStuck.Events).Kind)
}

func TestHubFiltersByDevice(t *testing.T) {
	hub := NewHub(10, discardLogger())
	defer hub.Close()

	sub := hub.Subscribe(&Filter{DeviceID: "dev-2"})

	hub.Publish(note("sess-a", "dev-1", "state"))
	hub.Publish(note("sess-b", "dev-2", "state"))

	require.Len(t, sub.Events, 1)
	assert.Equal(t, "dev-2", (<-sub.Events).Session.DeviceID)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1, discardLogger())
	defer hub.Close()

	sub := hub.Subscribe(nil)

	hub.Publish(note("sess-a", "dev-1", "state"))
	hub.Publish(note("sess-a", "dev-1", "error"))

	assert.Len(t, sub.Events, 1)
	stats := hub.Stats()
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(10, discardLogger())
	defer hub.Close()

	sub := hub.Subscribe(nil)
	hub.Unsubscribe(sub.ID)

	_, open := <-sub.Events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Stats().Subscribers)

	// Publishing after removal must not panic.
	hub.Publish(note("sess-a", "dev-1", "state"))
}

func TestHubCloseRejectsNewSubscribers(t *testing.T) {
	hub := NewHub(10, discardLogger())

	before := hub.Subscribe(nil)
	hub.Close()

	_, open := <-before.Events
	assert.False(t, open)

	after := hub.Subscribe(nil)
	_, open = <-after.Events
	assert.False(t, open)
}

type captureEventRepo struct {
	mu     sync.Mutex
	events []*models.PlaybackEvent
	err    error
}

func (r *captureEventRepo) Create(_ context.Context, event *models.PlaybackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *captureEventRepo) GetByID(context.Context, models.ULID) (*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *captureEventRepo) ListBySession(context.Context, string, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *captureEventRepo) ListByDevice(context.Context, string, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *captureEventRepo) ListRecent(context.Context, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *captureEventRepo) CountBySession(context.Context, string) (int64, error) {
	return 0, nil
}

func (r *captureEventRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *captureEventRepo) all() []*models.PlaybackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PlaybackEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestRecorderPersistsNotifications(t *testing.T) {
	repo := &captureEventRepo{}
	rec := NewRecorder(repo, discardLogger())

	n := note("sess-a", "dev-1", "retry_scheduled")
	n.Message = "reconnecting (attempt 2 of 5)"
	n.Session.RetryCount = 2
	n.Session.Mode = playback.ModeLive
	rec.Record(n)
	rec.Stop()

	events := repo.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "sess-a", ev.SessionID)
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.Equal(t, "retry_scheduled", ev.Kind)
	assert.Equal(t, "ready", ev.Lifecycle)
	assert.Equal(t, "segmented", ev.Transport)
	assert.Equal(t, "live", ev.Mode)
	assert.Equal(t, 2, ev.RetryCount)
	assert.Equal(t, "reconnecting (attempt 2 of 5)", ev.Message)
	assert.True(t, ev.Active)
}

func TestRecorderStopDrainsQueue(t *testing.T) {
	repo := &captureEventRepo{}
	rec := NewRecorder(repo, discardLogger())

	for i := 0; i < 20; i++ {
		rec.Record(note("sess-a", "dev-1", "state"))
	}
	rec.Stop()

	assert.Len(t, repo.all(), 20)
	assert.Equal(t, int64(0), rec.Dropped())
}

func TestRecorderRecordAfterStopIsDropped(t *testing.T) {
	repo := &captureEventRepo{}
	rec := NewRecorder(repo, discardLogger())

	rec.Record(note("sess-a", "dev-1", "state"))
	rec.Stop()

	assert.NotPanics(t, func() {
		rec.Record(note("sess-a", "dev-1", "closed"))
		rec.Record(note("sess-b", "dev-2", "state"))
	})
	rec.Stop()

	events := repo.all()
	require.Len(t, events, 1)
	assert.Equal(t, "state", events[0].Kind)
}

func TestFanOutInvokesAllNotifiers(t *testing.T) {
	var a, b int
	fn := FanOut(
		func(playback.Notification) { a++ },
		nil,
		func(playback.Notification) { b++ },
	)
	fn(note("sess-a", "dev-1", "state"))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
