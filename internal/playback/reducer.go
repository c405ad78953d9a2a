package playback

import "time"

// sessionState is the reducer's view of one session. It is a plain value:
// the reducer copies it, never mutates in place, and the controller owns
// the single authoritative copy under its mutex.
type sessionState struct {
	target    StreamTarget
	hasTarget bool

	// transport is the attached transport kind; TransportNone when
	// detached. loaded reports whether a source has been loaded into it
	// since the last teardown.
	transport TransportKind
	loaded    bool

	lifecycle Lifecycle
	active    bool
	suspended bool
	closed    bool

	retryCount      int
	segmentFailures int

	requiresGesture bool
	lastError       string

	// forcedNative is the escalation latch: once set the selector returns
	// native for every subsequent attempt. It survives manual restarts.
	forcedNative bool

	// stuckBySegments records that the Stuck state was produced by the
	// segment-failure counter. A ready event from a stale engine must not
	// clear a segment-caused Stuck.
	stuckBySegments bool

	// retryPending makes retry scheduling idempotent per error episode.
	retryPending bool

	// lastStartAt is the throttle clock. Manual restart and quality commit
	// reset it to zero.
	lastStartAt time.Time

	// generation is the timer liveness counter. Timers capture it at
	// schedule time and no-op if the session has moved on.
	generation uint64
}

// newSessionState returns the initial state: idle, active, nothing
// attached.
func newSessionState() sessionState {
	return sessionState{active: true, lifecycle: LifecycleIdle}
}

// reduce is the pure transition function: (state, event) -> (state,
// effects). All recovery policy lives here; the controller only executes
// the returned effects in order.
func reduce(s sessionState, ev event, now time.Time, cfg Config, caps Capabilities) (sessionState, []effect) {
	if s.closed && ev.kind != evClose {
		return s, nil
	}

	switch ev.kind {
	case evStart:
		return reduceStart(s, ev.target, now, cfg, caps, false)
	case evPause:
		return reducePause(s)
	case evResume:
		return reduceResume(s, now, cfg, caps)
	case evManualRestart:
		return reduceManualRestart(s, cfg)
	case evQualityBegin:
		return reduceQualityBegin(s)
	case evQualityCommit:
		s.suspended = false
		s.lastStartAt = time.Time{}
		return reduceStart(s, ev.target, now, cfg, caps, false)
	case evVisibility:
		return reduceVisibility(s, ev, cfg)
	case evGesture:
		return reduceGesture(s)
	case evClose:
		return reduceClose(s)
	case evTransportReady:
		return reduceReady(s)
	case evFragmentDelivered:
		return reduceFragment(s)
	case evTransportError:
		return reduceTransportError(s, ev.transportErr, cfg, caps)
	case evPlayRejected:
		s.requiresGesture = true
		return s, []effect{publish(EventGesture, "")}
	case evSoftRecoverFailed:
		return reduceSoftRecoverFailed(s, cfg)
	case evTimerFired:
		return reduceTimer(s, ev.timer, now, cfg, caps)
	default:
		return s, nil
	}
}

// reduceStart implements the start intent: guards, throttle, transport
// selection, and the teardown-vs-swap decision. force bypasses the
// throttle for timer-driven starts.
func reduceStart(s sessionState, target StreamTarget, now time.Time, cfg Config, caps Capabilities, force bool) (sessionState, []effect) {
	if !s.active || s.suspended || s.lifecycle == LifecycleStuck {
		return s, nil
	}
	if target.URL == "" {
		target = s.target
	}
	if target.URL == "" {
		return s, nil
	}
	if !force && !s.lastStartAt.IsZero() && now.Sub(s.lastStartAt) < cfg.StartThrottle {
		return s, nil
	}

	sel, err := selectTransport(target, caps, s.retryCount, s.forcedNative, cfg)
	if err != nil {
		s.lifecycle = LifecycleTerminal
		s.lastError = MsgUnsupported
		s.retryPending = false
		effects := []effect{cancelAll()}
		if s.transport != TransportNone {
			effects = append(effects, teardown())
			s.transport = TransportNone
			s.loaded = false
		}
		return s, append(effects, publish(EventTerminal, MsgUnsupported))
	}
	if sel.Latch {
		s.forcedNative = true
	}

	s.target = target
	s.hasTarget = true
	s.lastStartAt = now
	s.requiresGesture = false
	s.retryPending = false
	s.lifecycle = LifecycleInitializing

	// A start supersedes every pending recovery action. The generation
	// bump covers in-flight fires; the cancels cover timers still armed,
	// including on the swap path where no teardown happens.
	s.generation++
	effects := []effect{
		cancel(timerRetry),
		cancel(timerRestart),
		cancel(timerNativeSwitch),
	}

	switch {
	case s.transport == sel.Kind && s.loaded:
		// Same transport kind with a source loaded: swap in place instead
		// of tearing down, so the surface does not flicker. Swapping to
		// the same URL reloads it.
		effects = append(effects, swapSource(target))
	case s.transport != TransportNone:
		effects = append(effects, teardown(), attach(sel.Kind, target))
	default:
		effects = append(effects, attach(sel.Kind, target))
	}

	s.transport = sel.Kind
	s.loaded = true

	return s, append(effects, publish(EventState, ""))
}

func reducePause(s sessionState) (sessionState, []effect) {
	if !s.active {
		return s, nil
	}
	s.active = false
	s.generation++
	s.retryPending = false

	var effects []effect
	switch {
	case s.lifecycle == LifecycleStuck && s.transport != TransportNone:
		// The generation bump just killed the pending grace teardown, so
		// the stuck transport is destroyed here instead. It must not keep
		// polling the origin while the session is paused.
		effects = append(effects, teardown())
		s.transport = TransportNone
		s.loaded = false
	case s.transport != TransportNone && s.loaded:
		effects = append(effects, stopLoad(), pauseSink())
	}
	return s, append(effects, publish(EventState, ""))
}

func reduceResume(s sessionState, now time.Time, cfg Config, caps Capabilities) (sessionState, []effect) {
	if s.active {
		return s, nil
	}
	s.active = true
	s.generation++

	if s.lifecycle == LifecycleStuck || s.lifecycle == LifecycleTerminal || s.suspended {
		var effects []effect
		if s.lifecycle == LifecycleStuck && s.transport != TransportNone {
			// The session stuck while paused: the pause generation bump
			// already invalidated the grace teardown, so destroy the
			// transport now rather than leaving it polling.
			effects = append(effects, teardown())
			s.transport = TransportNone
			s.loaded = false
		}
		return s, append(effects, publish(EventState, ""))
	}

	if s.transport != TransportNone && s.loaded && s.hasTarget {
		// Non-destructive resume: the transport still holds the source, so
		// resuming load and playback avoids a full re-initialization.
		return s, []effect{startLoad(), play(), publish(EventState, "")}
	}

	return reduceStart(s, s.target, now, cfg, caps, true)
}

func reduceManualRestart(s sessionState, cfg Config) (sessionState, []effect) {
	if !s.active || !s.hasTarget {
		return s, nil
	}

	s.lastError = ""
	s.stuckBySegments = false
	s.requiresGesture = false
	s.retryCount = 0
	s.segmentFailures = 0
	s.retryPending = false
	s.lifecycle = LifecycleIdle
	s.loaded = false
	s.lastStartAt = time.Time{}
	s.generation++

	effects := []effect{cancelAll()}
	if s.transport != TransportNone {
		effects = append(effects, teardown())
		s.transport = TransportNone
	}
	effects = append(effects,
		schedule(timerRestart, cfg.RestartDelay),
		publish(EventState, ""),
	)
	return s, effects
}

func reduceQualityBegin(s sessionState) (sessionState, []effect) {
	if s.suspended || s.lifecycle == LifecycleStuck {
		// Refused while stuck: the commit's start would be refused anyway,
		// and the generation bump would orphan the grace teardown.
		return s, nil
	}
	s.suspended = true
	s.generation++
	s.retryPending = false

	var effects []effect
	if s.transport != TransportNone && s.loaded {
		// Freeze the visible frame while the new quality is prepared.
		effects = append(effects, stopLoad())
	}
	return s, append(effects, publish(EventState, ""))
}

func reduceVisibility(s sessionState, ev event, cfg Config) (sessionState, []effect) {
	if !ev.visible {
		// Hiding is recorded only; pausing is the caller's explicit intent.
		return s, nil
	}
	if s.active && s.hasTarget && (s.lastError != "" || s.lifecycle != LifecycleReady) {
		return reduceManualRestart(s, cfg)
	}
	if s.active && ev.sinkPaused {
		return s, []effect{play()}
	}
	return s, nil
}

func reduceGesture(s sessionState) (sessionState, []effect) {
	if !s.requiresGesture {
		return s, nil
	}
	s.requiresGesture = false
	// A gesture resolves a policy rejection, not a stream error: retry the
	// playback attempt directly, bypassing the retry machinery.
	return s, []effect{play(), publish(EventGesture, "")}
}

func reduceClose(s sessionState) (sessionState, []effect) {
	if s.closed {
		return s, nil
	}
	s.closed = true
	s.generation++
	s.retryPending = false

	effects := []effect{cancelAll()}
	if s.transport != TransportNone {
		effects = append(effects, teardown())
		s.transport = TransportNone
		s.loaded = false
	}
	return s, append(effects, clearSink(), publish(EventClosed, ""))
}

func reduceReady(s sessionState) (sessionState, []effect) {
	if s.stuckBySegments {
		// A ready from a transport that is about to be torn down must not
		// clear a segment-caused Stuck.
		return s, nil
	}
	s.retryCount = 0
	s.retryPending = false
	s.lastError = ""
	s.lifecycle = LifecycleReady

	if !s.active {
		return s, nil
	}
	return s, []effect{cancel(timerRetry), play(), publish(EventState, "")}
}

func reduceFragment(s sessionState) (sessionState, []effect) {
	s.segmentFailures = 0
	if s.lastError == "" {
		return s, nil
	}
	// A delivered fragment while an error is showing is the self-recovery
	// signal: clear the message.
	s.lastError = ""
	if s.lifecycle == LifecycleErroring {
		s.lifecycle = LifecycleReady
	}
	return s, []effect{publish(EventState, "")}
}

func reduceTransportError(s sessionState, terr TransportError, cfg Config, caps Capabilities) (sessionState, []effect) {
	if terr.Fatal {
		return reduceFatalError(s, terr, cfg, caps)
	}

	if terr.Category.selfRecovering() {
		return s, nil
	}

	if terr.Category == CategorySegmentNotFound {
		return reduceSegmentNotFound(s, cfg)
	}

	// Fragment load/parse error: soft recovery in the engine, but only
	// when not stuck and not a 404. Both guards are required.
	if s.lifecycle == LifecycleStuck || !s.active {
		return s, nil
	}
	s.lifecycle = LifecycleErroring
	s.lastError = retryMessage(s.retryCount+1, cfg.MaxRetries)
	return s, []effect{startLoad(), publish(EventError, s.lastError)}
}

func reduceSegmentNotFound(s sessionState, cfg Config) (sessionState, []effect) {
	if s.segmentFailures >= cfg.MaxSegmentFailures {
		// Saturated: further 404s change nothing.
		return s, nil
	}
	s.segmentFailures++

	if s.segmentFailures < cfg.MaxSegmentFailures || s.stuckBySegments {
		return s, nil
	}

	// The upstream producer has stopped emitting segments. Stop retrying,
	// surface the verdict, and tear the transport down after a short grace
	// so it stops hammering the origin.
	s.lifecycle = LifecycleStuck
	s.stuckBySegments = true
	s.lastError = MsgStuck
	s.retryPending = false
	return s, []effect{
		cancel(timerRetry),
		schedule(timerStuckTeardown, cfg.StuckTeardownGrace),
		publish(EventStuck, MsgStuck),
	}
}

func reduceFatalError(s sessionState, terr TransportError, cfg Config, caps Capabilities) (sessionState, []effect) {
	if !s.active {
		// No recovery while paused; resume or visibility handles it.
		return s, nil
	}

	if terr.Category == CategoryManifestNotFound {
		s.lifecycle = LifecycleTerminal
		s.lastError = MsgManifestMissing
		s.retryPending = false
		effects := []effect{cancelAll()}
		if s.transport != TransportNone {
			effects = append(effects, teardown())
			s.transport = TransportNone
			s.loaded = false
		}
		return s, append(effects, publish(EventTerminal, MsgManifestMissing))
	}

	if caps.NativeSegmented && s.transport != TransportNative {
		s.lifecycle = LifecycleErroring
		s.lastError = retryMessage(s.retryCount+1, cfg.MaxRetries)
		return s, []effect{
			schedule(timerNativeSwitch, cfg.NativeSwitchDelay),
			publish(EventError, s.lastError),
		}
	}

	// Full teardown and a fresh rebuild: the scheduled start runs with
	// retryCount reset to zero.
	s.lifecycle = LifecycleErroring
	s.lastError = retryMessage(s.retryCount+1, cfg.MaxRetries)
	s.retryCount = 0
	s.retryPending = false
	effects := []effect{}
	if s.transport != TransportNone {
		effects = append(effects, teardown())
		s.transport = TransportNone
		s.loaded = false
	}
	return s, append(effects,
		schedule(timerRestart, cfg.RetryDelay),
		publish(EventError, s.lastError),
	)
}

func reduceSoftRecoverFailed(s sessionState, cfg Config) (sessionState, []effect) {
	if !s.active || s.lifecycle == LifecycleStuck {
		return s, nil
	}
	if s.retryPending {
		// One pending timer per error episode.
		return s, nil
	}
	s.retryPending = true
	return s, []effect{
		schedule(timerRetry, cfg.RetryDelay),
		publish(EventError, s.lastError),
	}
}

func reduceTimer(s sessionState, kind timerKind, now time.Time, cfg Config, caps Capabilities) (sessionState, []effect) {
	// The controller already dropped stale generations; re-check the pause
	// flag so a timer racing a pause is skipped, not rescheduled.
	switch kind {
	case timerRetry:
		if !s.active {
			s.retryPending = false
			return s, nil
		}
		s.retryPending = false
		if s.retryCount < cfg.MaxRetries {
			s.retryCount++
		}
		return reduceStart(s, s.target, now, cfg, caps, true)

	case timerRestart:
		if !s.active {
			return s, nil
		}
		return reduceStart(s, s.target, now, cfg, caps, true)

	case timerNativeSwitch:
		if !s.active {
			return s, nil
		}
		s.forcedNative = true
		return reduceStart(s, s.target, now, cfg, caps, true)

	case timerStuckTeardown:
		if s.transport == TransportNone {
			return s, nil
		}
		s.transport = TransportNone
		s.loaded = false
		s.generation++
		return s, []effect{teardown()}

	default:
		return s, nil
	}
}
