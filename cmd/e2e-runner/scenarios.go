//nolint:errcheck,wrapcheck // E2E test runner uses relaxed linting
package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (r *Runner) testHealth(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func (r *Runner) testVersion(ctx context.Context) error {
	v, err := r.client.Version(ctx)
	if err != nil {
		return err
	}
	if v == "" {
		return fmt.Errorf("version endpoint returned an empty version")
	}
	r.log("  server version: %s", v)
	return nil
}

// scenarioRecoverableError corrupts segments so the engine reports
// fragment errors, then restores good segments and expects the session to
// clear the error without external intervention.
func (r *Runner) scenarioRecoverableError(ctx context.Context) error {
	origin := r.harness.Origin("bench-a")

	session, err := r.client.CreateSession(ctx, "bench-a", "", true)
	if err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, isReady); err != nil {
		return fmt.Errorf("session never became ready: %w", err)
	}

	origin.AdvanceCorrupt(2)

	errEvent, err := r.sseCollector.WaitFor(SSEWaitTimeout, func(ev SessionEvent) bool {
		return ev.Session.ID == session.ID && ev.Kind == "error"
	})
	if err != nil {
		return fmt.Errorf("no error event after corrupt segments: %w", err)
	}
	if errEvent.Message == "" {
		return fmt.Errorf("error event carried no user message")
	}

	// Fresh segments push the corrupt ones out of the live window; the
	// next delivered fragment is the self-recovery signal.
	origin.Advance(8)

	final, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, func(s Session) bool {
		return s.Lifecycle == "ready" && s.LastError == ""
	})
	if err != nil {
		return fmt.Errorf("session did not recover: %w", err)
	}
	if final.Lifecycle != "ready" {
		return fmt.Errorf("expected ready after recovery, got %s", final.Lifecycle)
	}
	return nil
}

// scenarioStuck advertises segments that 404 until the consecutive-failure
// budget is spent, and expects the stuck verdict with retries untouched.
func (r *Runner) scenarioStuck(ctx context.Context) error {
	origin := r.harness.Origin("bench-b")

	session, err := r.client.CreateSession(ctx, "bench-b", "", true)
	if err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, isReady); err != nil {
		return fmt.Errorf("session never became ready: %w", err)
	}

	if err := r.starveSegments(ctx, origin); err != nil {
		return err
	}

	stuckEvent, err := r.sseCollector.WaitFor(SSEWaitTimeout, func(ev SessionEvent) bool {
		return ev.Session.ID == session.ID && ev.Kind == "stuck"
	})
	if err != nil {
		return fmt.Errorf("no stuck event: %w", err)
	}
	if !strings.Contains(stuckEvent.Message, "manual restart") {
		return fmt.Errorf("stuck message %q should tell the user a manual restart is required", stuckEvent.Message)
	}
	if stuckEvent.Session.RetryCount != 0 {
		return fmt.Errorf("stuck must not consume the retry budget, got retry_count=%d", stuckEvent.Session.RetryCount)
	}

	snapshot, err := r.client.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if snapshot.Lifecycle != "stuck" {
		return fmt.Errorf("expected lifecycle stuck, got %s", snapshot.Lifecycle)
	}
	return nil
}

// scenarioTerminal removes the manifest before playback starts and expects
// the terminal verdict with no retry activity.
func (r *Runner) scenarioTerminal(ctx context.Context) error {
	origin := r.harness.Origin("bench-c")
	origin.SetManifestGone(true)

	session, err := r.client.CreateSession(ctx, "bench-c", "", true)
	if err != nil {
		return err
	}

	terminalEvent, err := r.sseCollector.WaitFor(SSEWaitTimeout, func(ev SessionEvent) bool {
		return ev.Session.ID == session.ID && ev.Kind == "terminal"
	})
	if err != nil {
		return fmt.Errorf("no terminal event: %w", err)
	}
	if !strings.Contains(terminalEvent.Message, "not found") {
		return fmt.Errorf("terminal message %q should say the stream was not found", terminalEvent.Message)
	}

	// Terminal means no automatic path forward: the session must still be
	// terminal after a couple of retry windows.
	time.Sleep(3 * fastPlaybackConfig().RetryDelay)
	snapshot, err := r.client.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if snapshot.Lifecycle != "terminal" {
		return fmt.Errorf("terminal session changed state to %s", snapshot.Lifecycle)
	}
	return nil
}

// scenarioPauseResume pauses a playing session and resumes it, expecting a
// non-destructive resume: no transport rebuild, straight back to ready.
func (r *Runner) scenarioPauseResume(ctx context.Context) error {
	session, err := r.client.CreateSession(ctx, "bench-d", "", true)
	if err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, isReady); err != nil {
		return fmt.Errorf("session never became ready: %w", err)
	}

	pausedAt := time.Now()
	paused, err := r.client.Intent(ctx, session.ID, "pause")
	if err != nil {
		return err
	}
	if paused.Active {
		return fmt.Errorf("session still active after pause")
	}

	if _, err := r.client.Intent(ctx, session.ID, "resume"); err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, func(s Session) bool {
		return s.Active && s.Lifecycle == "ready"
	}); err != nil {
		return fmt.Errorf("session did not return to ready after resume: %w", err)
	}

	// A destructive resume would rebuild the transport and pass through
	// initializing again.
	for _, ev := range r.sseCollector.EventsSince(pausedAt) {
		if ev.Session.ID == session.ID && ev.Session.Lifecycle == "initializing" {
			return fmt.Errorf("resume rebuilt the transport (saw initializing after pause)")
		}
	}
	return nil
}

// scenarioNativeEscalation makes playlist fetches fail persistently and
// expects the controller to switch the transport kind to native.
func (r *Runner) scenarioNativeEscalation(ctx context.Context) error {
	origin := r.harness.Origin("bench-e")

	session, err := r.client.CreateSession(ctx, "bench-e", "", true)
	if err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, isReady); err != nil {
		return fmt.Errorf("session never became ready: %w", err)
	}

	origin.FailPlaylistRequests(1000)

	if _, err := r.sseCollector.WaitFor(SSEWaitTimeout, func(ev SessionEvent) bool {
		return ev.Session.ID == session.ID && ev.Session.Transport == "native"
	}); err != nil {
		return fmt.Errorf("transport never switched to native: %w", err)
	}

	// The origin stays broken; stop the session so its retry loop does
	// not churn through the rest of the run.
	return r.client.CloseSession(ctx, session.ID)
}

// scenarioVisibilityRestart drives a session into stuck, then reports the
// surface hidden and visible again, expecting the automatic restart to
// clear the verdict.
func (r *Runner) scenarioVisibilityRestart(ctx context.Context) error {
	origin := r.harness.Origin("bench-f")

	session, err := r.client.CreateSession(ctx, "bench-f", "", true)
	if err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, isReady); err != nil {
		return fmt.Errorf("session never became ready: %w", err)
	}

	if err := r.starveSegments(ctx, origin); err != nil {
		return err
	}
	if _, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, func(s Session) bool {
		return s.Lifecycle == "stuck"
	}); err != nil {
		return fmt.Errorf("session never got stuck: %w", err)
	}

	// Give the restart something playable.
	origin.Advance(8)

	if _, err := r.client.SetVisibility(ctx, session.ID, false); err != nil {
		return err
	}
	if _, err := r.client.SetVisibility(ctx, session.ID, true); err != nil {
		return err
	}

	final, err := r.client.WaitForSession(ctx, session.ID, SSEWaitTimeout, func(s Session) bool {
		return s.Lifecycle == "ready" && s.LastError == ""
	})
	if err != nil {
		return fmt.Errorf("stuck session did not recover after visibility return: %w", err)
	}
	if final.Lifecycle != "ready" {
		return fmt.Errorf("expected ready, got %s", final.Lifecycle)
	}
	return nil
}

func (r *Runner) testDeviceBusy(ctx context.Context) error {
	first, err := r.client.CreateSession(ctx, "bench-extra", "", false)
	if err != nil {
		return err
	}

	if _, err := r.client.CreateSession(ctx, "bench-extra", "", false); err == nil {
		return fmt.Errorf("second session for a busy device was accepted")
	} else if !strings.Contains(err.Error(), "409") {
		return fmt.Errorf("expected status 409 for busy device, got: %v", err)
	}

	if err := r.client.CloseSession(ctx, first.ID); err != nil {
		return err
	}

	// Closed device frees the slot.
	replacement, err := r.client.CreateSession(ctx, "bench-extra", "", false)
	if err != nil {
		return fmt.Errorf("device still busy after close: %w", err)
	}
	return r.client.CloseSession(ctx, replacement.ID)
}

func (r *Runner) testHistory(ctx context.Context) error {
	// Scenario B persisted a stuck event; the history API must return it.
	sessions, err := r.client.ListSessions(ctx)
	if err != nil {
		return err
	}

	var stuckID string
	for _, s := range sessions {
		if s.DeviceID == "bench-b" {
			stuckID = s.ID
			break
		}
	}
	if stuckID == "" {
		return fmt.Errorf("scenario B session not found in session list")
	}

	// The recorder persists asynchronously; poll briefly.
	deadline := time.Now().Add(SSEWaitTimeout)
	for {
		events, err := r.client.SessionHistory(ctx, stuckID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Kind == "stuck" {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no stuck event in history after %d events", len(events))
		}
		time.Sleep(PollInterval)
	}
}

// starveSegments advertises batches of 404-only segments until the origin
// has pushed every fetchable segment out of the live window, spending the
// session's consecutive-failure budget.
func (r *Runner) starveSegments(ctx context.Context, origin interface{ AdvanceMissing(int) }) error {
	for i := 0; i < 4; i++ {
		origin.AdvanceMissing(4)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(400 * time.Millisecond):
		}
	}
	return nil
}

func isReady(s Session) bool { return s.Lifecycle == "ready" }
