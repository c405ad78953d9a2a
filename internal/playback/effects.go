package playback

import "time"

// effect is one side effect the controller must perform after a reduce.
// Effects execute strictly in slice order; teardown of an old transport is
// always emitted before the attach of its replacement.
type effect struct {
	kind effectKind

	// target accompanies attach and swap effects.
	target StreamTarget

	// transport accompanies attach effects.
	transport TransportKind

	// timer and delay accompany schedule effects; timer alone accompanies
	// cancel effects.
	timer timerKind
	delay time.Duration

	// publishKind and message accompany publish effects.
	publishKind string
	message     string
}

type effectKind int

const (
	// effectTeardown destroys the attached transport.
	effectTeardown effectKind = iota

	// effectAttach builds a transport of the given kind and loads the
	// target into it.
	effectAttach

	// effectSwapSource re-points the attached transport at a new target
	// without destroying it (no visible flicker).
	effectSwapSource

	// effectStopLoad suspends the transport's load activity.
	effectStopLoad

	// effectStartLoad resumes load activity; also the in-engine soft
	// recovery path. A failure feeds back as evSoftRecoverFailed.
	effectStartLoad

	// effectPlay attempts sink playback. A policy rejection feeds back as
	// evPlayRejected.
	effectPlay

	// effectPauseSink pauses the sink without destroying anything.
	effectPauseSink

	// effectClearSink removes the sink's source on session close.
	effectClearSink

	// effectSchedule arms a timer of the given kind, replacing any pending
	// timer of the same kind.
	effectSchedule

	// effectCancel disarms a pending timer of the given kind.
	effectCancel

	// effectCancelAll disarms every pending timer.
	effectCancelAll

	// effectPublish emits a session event to observers.
	effectPublish
)

// Event kinds published to observers. The monitor hub fans these out to
// SSE subscribers and the history recorder.
const (
	EventState    = "state"
	EventError    = "error"
	EventStuck    = "stuck"
	EventTerminal = "terminal"
	EventGesture  = "gesture"
	EventClosed   = "closed"
)

func teardown() effect { return effect{kind: effectTeardown} }
func attach(k TransportKind, t StreamTarget) effect {
	return effect{kind: effectAttach, transport: k, target: t}
}
func swapSource(t StreamTarget) effect { return effect{kind: effectSwapSource, target: t} }
func stopLoad() effect { return effect{kind: effectStopLoad} }
func startLoad() effect { return effect{kind: effectStartLoad} }
func play() effect { return effect{kind: effectPlay} }
func pauseSink() effect { return effect{kind: effectPauseSink} }
func clearSink() effect { return effect{kind: effectClearSink} }
func schedule(k timerKind, d time.Duration) effect {
	return effect{kind: effectSchedule, timer: k, delay: d}
}
func cancel(k timerKind) effect { return effect{kind: effectCancel, timer: k} }
func cancelAll() effect { return effect{kind: effectCancelAll} }
func publish(kind, message string) effect {
	return effect{kind: effectPublish, publishKind: kind, message: message}
}
