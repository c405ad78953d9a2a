package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/angelstreet/streamwatch/internal/models"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/repository"
)

// recorderQueueDepth bounds how many unpersisted events the recorder holds
// before it starts dropping. Persistence is diagnostic history, not a
// source of truth, so losing events under sustained DB pressure is
// preferable to back-pressuring the controllers.
const recorderQueueDepth = 256

// Recorder persists playback notifications as history rows. Record is
// non-blocking; a single worker goroutine writes to the repository.
type Recorder struct {
	repo   repository.PlaybackEventRepository
	logger *slog.Logger

	queue   chan playback.Notification
	dropped atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRecorder starts a recorder writing into the given repository.
func NewRecorder(repo repository.PlaybackEventRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan playback.Notification, recorderQueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a notification for persistence. It never blocks: if the
// queue is full the event is dropped and counted, and calls after Stop are
// dropped silently. Safe to use as a playback.Notifier.
func (r *Recorder) Record(n playback.Notification) {
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.queue <- n:
	default:
		r.dropped.Add(1)
		r.logger.Warn("recorder queue full, dropping event",
			"session_id", n.Session.ID,
			"kind", n.Kind)
	}
}

// Dropped returns how many events were lost to queue overflow.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Stop drains the queue and stops the worker. The queue channel is never
// closed, so a Record racing Stop cannot panic.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case n := <-r.queue:
			r.persist(n)
		case <-r.stop:
			for {
				select {
				case n := <-r.queue:
					r.persist(n)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(n playback.Notification) {
	ev := eventFromNotification(n)
	if err := r.repo.Create(context.Background(), ev); err != nil {
		r.logger.Error("failed to persist playback event",
			"session_id", ev.SessionID,
			"kind", ev.Kind,
			"error", err)
	}
}

func eventFromNotification(n playback.Notification) *models.PlaybackEvent {
	return &models.PlaybackEvent{
		SessionID:       n.Session.ID,
		DeviceID:        n.Session.DeviceID,
		Kind:            n.Kind,
		Lifecycle:       n.Session.Lifecycle.String(),
		Transport:       n.Session.Transport.String(),
		Mode:            string(n.Session.Mode),
		TargetURL:       n.Session.TargetURL,
		RetryCount:      n.Session.RetryCount,
		SegmentFailures: n.Session.SegmentFailures,
		Message:         n.Message,
		Active:          n.Session.Active,
		RequiresGesture: n.Session.RequiresGesture,
	}
}

// FanOut composes notifiers so one playback.Notifier can feed both the hub
// and the recorder.
func FanOut(notifiers ...playback.Notifier) playback.Notifier {
	return func(n playback.Notification) {
		for _, fn := range notifiers {
			if fn != nil {
				fn(n)
			}
		}
	}
}
