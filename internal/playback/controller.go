package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/angelstreet/streamwatch/internal/urlutil"
)

// Notification is a session event handed to the controller's observer.
type Notification struct {
	Kind    string    `json:"kind"`
	Session Snapshot  `json:"session"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications in dispatch order. It is invoked with the
// controller's lock held: it must not block and must not call back into the
// controller.
type Notifier func(Notification)

// ControllerOptions configures a session controller.
type ControllerOptions struct {
	ID           string
	DeviceID     string
	Config       Config
	Capabilities Capabilities
	Factory      TransportFactory
	Sink         DisplaySink
	Logger       *slog.Logger
	Notify       Notifier

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Controller runs one playback session. Every input (caller intent,
// transport callback, timer fire) becomes an event; events are reduced one
// at a time under a single lock, and the resulting effects execute in order
// before the next event is taken.
type Controller struct {
	id       string
	deviceID string
	cfg      Config
	caps     Capabilities
	factory  TransportFactory
	sink     DisplaySink
	log      *slog.Logger
	notify   Notifier
	clock    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state sessionState

	transport Transport
	// transportSeq identifies the current attach. Callbacks capture the
	// sequence at attach time; events from a torn-down transport are
	// dropped.
	transportSeq uint64

	timers map[timerKind]*time.Timer

	// queue holds follow-up events produced while draining (effect
	// failures, callback arrivals during dispatch).
	queue       []event
	dispatching bool

	updatedAt time.Time
}

// NewController builds a controller in the idle state. Nothing happens
// until Start.
func NewController(opts ControllerOptions) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:       opts.ID,
		deviceID: opts.DeviceID,
		cfg:      opts.Config,
		caps:     opts.Capabilities,
		factory:  opts.Factory,
		sink:     opts.Sink,
		log:      logger.With("session_id", opts.ID, "device_id", opts.DeviceID),
		notify:   opts.Notify,
		clock:    clock,
		ctx:      ctx,
		cancel:   cancel,
		state:    newSessionState(),
		timers:   make(map[timerKind]*time.Timer),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// DeviceID returns the device this session plays for.
func (c *Controller) DeviceID() string { return c.deviceID }

// Start begins or re-targets playback.
func (c *Controller) Start(target StreamTarget) error {
	if target.URL == "" {
		return ErrNoTarget
	}
	return c.intent(event{kind: evStart, target: target})
}

// Pause halts playback and suppresses every pending recovery action.
func (c *Controller) Pause() error {
	return c.intent(event{kind: evPause})
}

// Resume re-enables playback. When the transport survived the pause it
// resumes in place; otherwise a fresh start runs.
func (c *Controller) Resume() error {
	return c.intent(event{kind: evResume})
}

// Restart tears everything down and rebuilds from scratch. It is the only
// way out of the stuck state.
func (c *Controller) Restart() error {
	return c.intent(event{kind: evManualRestart})
}

// Gesture reports a user interaction, clearing a pending autoplay
// rejection.
func (c *Controller) Gesture() error {
	return c.intent(event{kind: evGesture})
}

// SetVisibility reports the playback surface becoming visible or hidden.
// Regaining visibility on an errored session triggers one restart.
func (c *Controller) SetVisibility(visible bool) error {
	ev := event{kind: evVisibility, visible: visible}
	if visible && c.sink != nil {
		ev.sinkPaused = c.sink.Paused()
	}
	return c.intent(ev)
}

// BeginQualityChange suspends the session while a new quality is prepared.
// The current frame stays visible.
func (c *Controller) BeginQualityChange() error {
	return c.intent(event{kind: evQualityBegin})
}

// CommitQualityChange ends the suspension and starts the new target.
func (c *Controller) CommitQualityChange(target StreamTarget) error {
	if target.URL == "" {
		return ErrNoTarget
	}
	return c.intent(event{kind: evQualityCommit, target: target})
}

// Close ends the session permanently.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state.closed {
		c.mu.Unlock()
		return nil
	}
	c.dispatchLocked(event{kind: evClose})
	c.mu.Unlock()
	c.cancel()
	return nil
}

// Closed reports whether the session has been closed.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.closed
}

// LastActivity returns the time of the most recent state change.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Snapshot returns the session's current read model.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) intent(ev event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.closed {
		return ErrSessionClosed
	}
	c.dispatchLocked(ev)
	return nil
}

// dispatchLocked appends an event and, unless a drain is already running
// higher in the stack, drains the queue. Effects executed during the drain
// may append further events; they are processed in arrival order.
func (c *Controller) dispatchLocked(ev event) {
	c.queue = append(c.queue, ev)
	if c.dispatching {
		return
	}
	c.dispatching = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.step(next)
	}
	c.dispatching = false
}

func (c *Controller) step(ev event) {
	now := c.clock()
	prev := c.state
	next, effects := reduce(prev, ev, now, c.cfg, c.caps)
	c.state = next
	c.updatedAt = now

	if prev.lifecycle != next.lifecycle {
		c.log.Debug("lifecycle transition",
			"event", ev.kind.String(),
			"from", prev.lifecycle.String(),
			"to", next.lifecycle.String(),
			"retry_count", next.retryCount,
			"segment_failures", next.segmentFailures)
	} else if len(effects) > 0 {
		c.log.Debug("session event",
			"event", ev.kind.String(),
			"lifecycle", next.lifecycle.String(),
			"effects", len(effects))
	}

	for _, e := range effects {
		c.applyEffect(e, now)
	}
}

func (c *Controller) applyEffect(e effect, now time.Time) {
	switch e.kind {
	case effectTeardown:
		c.teardownTransport()

	case effectAttach:
		c.attachTransport(e.transport, e.target)

	case effectSwapSource:
		if c.transport == nil {
			c.attachTransport(e.transport, e.target)
			return
		}
		if err := c.transport.SwapSource(c.ctx, e.target); err != nil {
			c.log.Warn("source swap failed", "error", err)
			c.queue = append(c.queue, event{kind: evTransportError, transportErr: TransportError{
				Category: CategoryNetwork, Fatal: true, Err: err,
			}})
		}

	case effectStopLoad:
		if c.transport != nil {
			c.transport.StopLoad()
		}

	case effectStartLoad:
		if c.transport == nil {
			c.queue = append(c.queue, event{kind: evSoftRecoverFailed})
			return
		}
		if err := c.transport.StartLoad(); err != nil {
			c.log.Debug("in-engine recovery failed", "error", err)
			c.queue = append(c.queue, event{kind: evSoftRecoverFailed})
		}

	case effectPlay:
		if c.sink == nil {
			return
		}
		if err := c.sink.Play(); err != nil {
			if errors.Is(err, ErrPlaybackPolicy) {
				c.log.Info("playback deferred pending user gesture")
				c.queue = append(c.queue, event{kind: evPlayRejected})
				return
			}
			c.log.Warn("sink play failed", "error", err)
		}

	case effectPauseSink:
		if c.sink != nil {
			c.sink.Pause()
		}

	case effectClearSink:
		if c.sink != nil {
			c.sink.Clear()
		}

	case effectSchedule:
		c.scheduleTimer(e.timer, e.delay)

	case effectCancel:
		c.cancelTimer(e.timer)

	case effectCancelAll:
		for k := range c.timers {
			c.cancelTimer(k)
		}

	case effectPublish:
		if c.notify != nil {
			c.notify(Notification{
				Kind:    e.publishKind,
				Session: c.snapshotLocked(),
				Message: e.message,
				At:      now,
			})
		}
	}
}

func (c *Controller) teardownTransport() {
	if c.transport == nil {
		return
	}
	t := c.transport
	c.transport = nil
	c.transportSeq++
	t.Destroy()
}

func (c *Controller) attachTransport(kind TransportKind, target StreamTarget) {
	c.transportSeq++
	seq := c.transportSeq
	cb := TransportCallbacks{
		OnReady: func() {
			c.transportEvent(seq, event{kind: evTransportReady})
		},
		OnFragment: func(uri string) {
			c.transportEvent(seq, event{kind: evFragmentDelivered, fragmentURI: uri})
		},
		OnError: func(terr TransportError) {
			c.transportEvent(seq, event{kind: evTransportError, transportErr: terr})
		},
	}
	t, err := c.factory.New(kind, c.sink, cb)
	if err != nil {
		c.log.Error("transport construction failed", "transport", kind.String(), "error", err)
		c.queue = append(c.queue, event{kind: evTransportError, transportErr: TransportError{
			Category: CategoryMedia, Fatal: true, Err: err,
		}})
		return
	}
	c.transport = t
	c.log.Info("transport attached",
		"transport", kind.String(),
		"url", urlutil.Sanitize(target.URL),
		"mode", string(target.Mode))
	if err := t.Load(c.ctx, target); err != nil {
		c.log.Warn("transport load failed", "error", err)
		c.queue = append(c.queue, event{kind: evTransportError, transportErr: TransportError{
			Category: CategoryNetwork, Fatal: true, Err: err,
		}})
	}
}

// transportEvent is the entry point for transport callbacks. Events from a
// transport that has since been torn down are dropped.
func (c *Controller) transportEvent(seq uint64, ev event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.transportSeq || c.state.closed {
		return
	}
	c.dispatchLocked(ev)
}

func (c *Controller) scheduleTimer(kind timerKind, delay time.Duration) {
	c.cancelTimer(kind)
	gen := c.state.generation
	c.timers[kind] = time.AfterFunc(delay, func() {
		c.onTimer(kind, gen)
	})
}

func (c *Controller) cancelTimer(kind timerKind) {
	if t, ok := c.timers[kind]; ok {
		t.Stop()
		delete(c.timers, kind)
	}
}

// onTimer delivers a timer fire. A fire whose generation predates the
// session's current generation is stale and dropped: pause, resume,
// restart, quality change, and close all advance the generation precisely
// so that in-flight timers die.
func (c *Controller) onTimer(kind timerKind, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.closed || gen != c.state.generation {
		return
	}
	delete(c.timers, kind)
	c.dispatchLocked(event{kind: evTimerFired, timer: kind})
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.state
	snap := Snapshot{
		ID:              c.id,
		DeviceID:        c.deviceID,
		Transport:       s.transport,
		Lifecycle:       s.lifecycle,
		Active:          s.active,
		Suspended:       s.suspended,
		RetryCount:      s.retryCount,
		SegmentFailures: s.segmentFailures,
		RequiresGesture: s.requiresGesture,
		LastError:       s.lastError,
		UpdatedAt:       c.updatedAt,
	}
	if s.hasTarget {
		snap.TargetURL = urlutil.Sanitize(s.target.URL)
		snap.Mode = s.target.Mode
		snap.Quality = s.target.Quality
	}
	return snap
}
