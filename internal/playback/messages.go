package playback

import "fmt"

// User-facing messages surfaced through Snapshot.LastError. The UI displays
// these verbatim; everything else about a failure stays in the logs.
const (
	// MsgStuck is shown when the consecutive segment-failure budget is
	// exhausted. Only a manual restart clears it.
	MsgStuck = "Stream stuck: manual restart required"

	// MsgManifestMissing is shown when the manifest is permanently gone.
	MsgManifestMissing = "Stream not found: manifest is missing"

	// MsgUnsupported is shown when no transport can play the target.
	MsgUnsupported = "Playback is not supported in this environment"
)

// retryMessage renders the transient-error message with the current
// attempt count.
func retryMessage(attempt, maxRetries int) string {
	if attempt > maxRetries {
		attempt = maxRetries
	}
	if attempt < 1 {
		attempt = 1
	}
	return fmt.Sprintf("Stream error: retrying (attempt %d of %d)", attempt, maxRetries)
}
