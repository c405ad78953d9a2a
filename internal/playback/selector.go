package playback

import "fmt"

// selection is the transport selector's verdict, with step-appended
// reasons for logging and a latch flag when escalation applies.
type selection struct {
	// Kind is the chosen transport.
	Kind TransportKind

	// Latch requests that the session force native for all subsequent
	// attempts. Once set it survives manual restarts; only closing the
	// session clears it.
	Latch bool

	// Reasons explains the decision, one step per entry.
	Reasons []string
}

// selectTransport decides the playback path for a target.
//
// Non-segmented targets always play natively. Segmented targets use the
// engine when available, falling back to native segmented playback. The
// escalation rule latches the session to native once retryCount crosses
// the configured threshold with native support present, or once it reaches
// MaxRetries regardless of support.
func selectTransport(target StreamTarget, caps Capabilities, retryCount int, forced bool, cfg Config) (selection, error) {
	sel := selection{Reasons: make([]string, 0, 3)}

	if !target.Segmented() {
		sel.Kind = TransportNative
		sel.Reasons = append(sel.Reasons, "single-file target plays natively")
		return sel, nil
	}

	if forced {
		sel.Kind = TransportNative
		sel.Reasons = append(sel.Reasons, "session latched to native by prior escalation")
		return sel, nil
	}

	if retryCount >= cfg.MaxRetries {
		sel.Kind = TransportNative
		sel.Latch = true
		sel.Reasons = append(sel.Reasons,
			fmt.Sprintf("retry budget exhausted (%d/%d) - forcing native", retryCount, cfg.MaxRetries))
		return sel, nil
	}

	if retryCount > cfg.NativeEscalationThreshold && caps.NativeSegmented {
		sel.Kind = TransportNative
		sel.Latch = true
		sel.Reasons = append(sel.Reasons,
			fmt.Sprintf("retry count %d crossed threshold %d with native segmented support - escalating",
				retryCount, cfg.NativeEscalationThreshold))
		return sel, nil
	}

	if caps.SegmentedEngine {
		sel.Kind = TransportSegmented
		sel.Reasons = append(sel.Reasons, "segmented target with engine support")
		return sel, nil
	}

	if caps.NativeSegmented {
		sel.Kind = TransportNative
		sel.Reasons = append(sel.Reasons, "engine unavailable - native segmented playback supported")
		return sel, nil
	}

	sel.Kind = TransportNone
	sel.Reasons = append(sel.Reasons, "segmented target with no engine and no native segmented support")
	return sel, ErrEnvironmentUnsupported
}
