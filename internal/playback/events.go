package playback

// ErrorCategory classifies transport errors. The reducer's recovery
// decision depends entirely on the category plus the fatal flag; the
// underlying error text is for logs only.
type ErrorCategory int

const (
	// CategoryUnknown is an unclassified error.
	CategoryUnknown ErrorCategory = iota

	// CategoryBufferStall is engine buffering noise that self-heals.
	CategoryBufferStall

	// CategoryBufferSeekOverHole is engine buffering noise that self-heals.
	CategoryBufferSeekOverHole

	// CategoryBufferNudge is engine buffering noise that self-heals.
	CategoryBufferNudge

	// CategoryLevelLoadTimeout is a slow playlist refresh the engine
	// retries internally.
	CategoryLevelLoadTimeout

	// CategorySegmentNotFound is a 404-class segment fetch failure. It
	// feeds the stuck detector, never the retry counter.
	CategorySegmentNotFound

	// CategoryFragmentLoad is a non-404 segment fetch failure.
	CategoryFragmentLoad

	// CategoryFragmentParse is a corrupt or unparseable segment.
	CategoryFragmentParse

	// CategoryManifestNotFound is a 404-class manifest failure. Fatal and
	// terminal: the stream does not exist.
	CategoryManifestNotFound

	// CategoryNetwork is a fatal transport-level network failure.
	CategoryNetwork

	// CategoryMedia is a fatal decode or sink-level media failure.
	CategoryMedia
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryBufferStall:
		return "buffer-stall"
	case CategoryBufferSeekOverHole:
		return "buffer-seek-over-hole"
	case CategoryBufferNudge:
		return "buffer-nudge"
	case CategoryLevelLoadTimeout:
		return "level-load-timeout"
	case CategorySegmentNotFound:
		return "segment-not-found"
	case CategoryFragmentLoad:
		return "fragment-load"
	case CategoryFragmentParse:
		return "fragment-parse"
	case CategoryManifestNotFound:
		return "manifest-not-found"
	case CategoryNetwork:
		return "network"
	case CategoryMedia:
		return "media"
	default:
		return "unknown"
	}
}

// selfRecovering reports whether the category is engine buffering noise
// that is absorbed without any state change.
func (c ErrorCategory) selfRecovering() bool {
	switch c {
	case CategoryBufferStall, CategoryBufferSeekOverHole, CategoryBufferNudge, CategoryLevelLoadTimeout:
		return true
	default:
		return false
	}
}

// TransportError is the error payload emitted by a transport.
type TransportError struct {
	// Category classifies the failure for the recovery state machine.
	Category ErrorCategory

	// Fatal marks errors the transport cannot recover from in place.
	Fatal bool

	// StatusCode is the HTTP-like response code when applicable (0 when
	// not).
	StatusCode int

	// Err is the underlying error, for logging.
	Err error
}

// timerKind names the controller's scheduled side effects. One timer per
// kind may be pending at a time; scheduling replaces any predecessor.
type timerKind int

const (
	// timerRetry increments retryCount at fire time and re-starts.
	timerRetry timerKind = iota

	// timerRestart re-starts without touching retryCount. Used by manual
	// restart and by the fresh rebuild after a fatal error.
	timerRestart

	// timerNativeSwitch escalates to the native transport.
	timerNativeSwitch

	// timerStuckTeardown destroys the transport of a stuck session to stop
	// further upstream requests.
	timerStuckTeardown
)

func (k timerKind) String() string {
	switch k {
	case timerRetry:
		return "retry"
	case timerRestart:
		return "restart"
	case timerNativeSwitch:
		return "native-switch"
	case timerStuckTeardown:
		return "stuck-teardown"
	default:
		return "unknown"
	}
}

// event is the closed set of inputs to the reducer: caller intents,
// transport and sink callbacks, and timer fires. Exactly one field group is
// populated per instance.
type event struct {
	kind eventKind

	// target accompanies start and quality-commit intents.
	target StreamTarget

	// visible and sinkPaused accompany visibility intents.
	visible    bool
	sinkPaused bool

	// transportErr accompanies transport error events.
	transportErr TransportError

	// timer accompanies timer-fired events.
	timer timerKind

	// fragmentURI accompanies fragment-delivered events.
	fragmentURI string
}

type eventKind int

const (
	evStart eventKind = iota
	evPause
	evResume
	evManualRestart
	evQualityBegin
	evQualityCommit
	evVisibility
	evGesture
	evClose

	evTransportReady
	evFragmentDelivered
	evTransportError

	evPlayRejected
	evSoftRecoverFailed

	evTimerFired
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evPause:
		return "pause"
	case evResume:
		return "resume"
	case evManualRestart:
		return "manual-restart"
	case evQualityBegin:
		return "quality-begin"
	case evQualityCommit:
		return "quality-commit"
	case evVisibility:
		return "visibility"
	case evGesture:
		return "gesture"
	case evClose:
		return "close"
	case evTransportReady:
		return "transport-ready"
	case evFragmentDelivered:
		return "fragment-delivered"
	case evTransportError:
		return "transport-error"
	case evPlayRejected:
		return "play-rejected"
	case evSoftRecoverFailed:
		return "soft-recover-failed"
	case evTimerFired:
		return "timer-fired"
	default:
		return "unknown"
	}
}
