package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/resolver"
)

// SessionsHandler exposes playback session lifecycle and intents.
type SessionsHandler struct {
	manager  *playback.Manager
	resolver resolver.Resolver
	logger   *slog.Logger
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(manager *playback.Manager, res resolver.Resolver, logger *slog.Logger) *SessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsHandler{
		manager:  manager,
		resolver: res,
		logger:   logger,
	}
}

// TargetRequest lets callers override the resolved stream target.
type TargetRequest struct {
	URL       string `json:"url,omitempty" doc:"Explicit stream URL; skips the resolver"`
	Mode      string `json:"mode,omitempty" doc:"Stream mode: live or archive" enum:"live,archive,"`
	Quality   string `json:"quality,omitempty" doc:"Quality tier for multivariant playlists"`
	Container string `json:"container,omitempty" doc:"Container hint: hls or file" enum:"hls,file,"`
}

// CreateSessionBody is the request body for creating a session.
type CreateSessionBody struct {
	DeviceID  string `json:"device_id" minLength:"1" doc:"Device under test"`
	Autostart *bool  `json:"autostart,omitempty" doc:"Start playback immediately (default true)"`
	TargetRequest
}

// CreateSessionInput is the input for creating a session.
type CreateSessionInput struct {
	Body CreateSessionBody
}

// SessionOutput wraps a single session response.
type SessionOutput struct {
	Body SessionResponse
}

// ListSessionsOutput wraps the session list.
type ListSessionsOutput struct {
	Body SessionListBody
}

// SessionIDInput identifies a session by path parameter.
type SessionIDInput struct {
	SessionID string `path:"session_id" doc:"Session ID"`
}

// StartSessionInput optionally overrides the target when starting.
type StartSessionInput struct {
	SessionID string `path:"session_id" doc:"Session ID"`
	Body      *TargetRequest
}

// VisibilityInput carries a visibility change.
type VisibilityInput struct {
	SessionID string `path:"session_id" doc:"Session ID"`
	Body      struct {
		Visible bool `json:"visible" doc:"Whether the session's surface is visible"`
	}
}

// QualityInput carries a quality switch request.
type QualityInput struct {
	SessionID string `path:"session_id" doc:"Session ID"`
	Body      struct {
		Quality string `json:"quality" minLength:"1" doc:"Quality tier to switch to"`
		URL     string `json:"url,omitempty" doc:"Explicit URL override; skips the resolver"`
		Mode    string `json:"mode,omitempty" doc:"Stream mode override" enum:"live,archive,"`
	}
}

// MessageOutput wraps a plain acknowledgement.
type MessageOutput struct {
	Body MessageBody
}

// Register registers the session routes with the API.
func (h *SessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createSession",
		Method:      "POST",
		Path:        "/api/v1/sessions",
		Summary:     "Create session",
		Description: "Creates a playback session for a device and, unless autostart is false, starts playback against the resolved stream target",
		Tags:        []string{"Sessions"},
	}, h.CreateSession)

	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Tags:        []string{"Sessions"},
	}, h.ListSessions)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      "GET",
		Path:        "/api/v1/sessions/{session_id}",
		Summary:     "Get session",
		Tags:        []string{"Sessions"},
	}, h.GetSession)

	huma.Register(api, huma.Operation{
		OperationID: "closeSession",
		Method:      "DELETE",
		Path:        "/api/v1/sessions/{session_id}",
		Summary:     "Close session",
		Description: "Tears down the session's transport and removes it from the registry",
		Tags:        []string{"Sessions"},
	}, h.CloseSession)

	huma.Register(api, huma.Operation{
		OperationID: "startSession",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/start",
		Summary:     "Start playback",
		Description: "Starts or re-targets playback. Without a body the device's stream is re-resolved",
		Tags:        []string{"Sessions"},
	}, h.StartSession)

	huma.Register(api, huma.Operation{
		OperationID: "pauseSession",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/pause",
		Summary:     "Pause playback",
		Tags:        []string{"Sessions"},
	}, h.PauseSession)

	huma.Register(api, huma.Operation{
		OperationID: "resumeSession",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/resume",
		Summary:     "Resume playback",
		Tags:        []string{"Sessions"},
	}, h.ResumeSession)

	huma.Register(api, huma.Operation{
		OperationID: "restartSession",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/restart",
		Summary:     "Restart playback",
		Description: "Full manual restart: tears the transport down and rebuilds from scratch. The only way out of a stuck session",
		Tags:        []string{"Sessions"},
	}, h.RestartSession)

	huma.Register(api, huma.Operation{
		OperationID: "sessionGesture",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/gesture",
		Summary:     "Deliver user gesture",
		Description: "Unblocks playback when the sink's autoplay policy rejected the first play",
		Tags:        []string{"Sessions"},
	}, h.Gesture)

	huma.Register(api, huma.Operation{
		OperationID: "sessionVisibility",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/visibility",
		Summary:     "Report visibility change",
		Description: "Regaining visibility restarts an errored session and resumes a healthy paused one",
		Tags:        []string{"Sessions"},
	}, h.SetVisibility)

	huma.Register(api, huma.Operation{
		OperationID: "sessionQuality",
		Method:      "POST",
		Path:        "/api/v1/sessions/{session_id}/quality",
		Summary:     "Switch quality",
		Description: "Two-phase quality change: suspends recovery, re-resolves the target at the requested tier, then restarts playback",
		Tags:        []string{"Sessions"},
	}, h.SetQuality)
}

// CreateSession creates a session and optionally starts playback.
func (h *SessionsHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	target, err := h.resolveTarget(ctx, input.Body.DeviceID, &input.Body.TargetRequest)
	if err != nil {
		return nil, mapResolveError(err)
	}

	ctrl, err := h.manager.Create(input.Body.DeviceID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}

	autostart := input.Body.Autostart == nil || *input.Body.Autostart
	if autostart {
		if err := ctrl.Start(target); err != nil {
			return nil, mapPlaybackError(err)
		}
	}

	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

// ListSessions returns all open sessions.
func (h *SessionsHandler) ListSessions(ctx context.Context, _ *struct{}) (*ListSessionsOutput, error) {
	snapshots := h.manager.List()
	out := &ListSessionsOutput{}
	out.Body.Sessions = make([]SessionResponse, 0, len(snapshots))
	out.Body.Sessions = append(out.Body.Sessions, snapshots...)
	return out, nil
}

// GetSession returns one session snapshot.
func (h *SessionsHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	ctrl, err := h.manager.Get(input.SessionID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}
	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

// CloseSession closes and removes a session.
func (h *SessionsHandler) CloseSession(ctx context.Context, input *SessionIDInput) (*MessageOutput, error) {
	if err := h.manager.Close(input.SessionID); err != nil {
		return nil, mapPlaybackError(err)
	}
	return &MessageOutput{Body: MessageBody{Message: "session closed"}}, nil
}

// StartSession starts playback, re-resolving the target when no explicit
// URL is supplied.
func (h *SessionsHandler) StartSession(ctx context.Context, input *StartSessionInput) (*SessionOutput, error) {
	ctrl, err := h.manager.Get(input.SessionID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}

	target, err := h.resolveTarget(ctx, ctrl.DeviceID(), input.Body)
	if err != nil {
		return nil, mapResolveError(err)
	}

	if err := ctrl.Start(target); err != nil {
		return nil, mapPlaybackError(err)
	}
	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

// PauseSession pauses playback.
func (h *SessionsHandler) PauseSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.intent(input.SessionID, (*playback.Controller).Pause)
}

// ResumeSession resumes playback.
func (h *SessionsHandler) ResumeSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.intent(input.SessionID, (*playback.Controller).Resume)
}

// RestartSession performs a full manual restart.
func (h *SessionsHandler) RestartSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.intent(input.SessionID, (*playback.Controller).Restart)
}

// Gesture delivers a user gesture to the session.
func (h *SessionsHandler) Gesture(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.intent(input.SessionID, (*playback.Controller).Gesture)
}

// SetVisibility reports a visibility change.
func (h *SessionsHandler) SetVisibility(ctx context.Context, input *VisibilityInput) (*SessionOutput, error) {
	ctrl, err := h.manager.Get(input.SessionID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}
	if err := ctrl.SetVisibility(input.Body.Visible); err != nil {
		return nil, mapPlaybackError(err)
	}
	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

// SetQuality switches quality via the two-phase change: resolve the new
// target first, then suspend, then commit.
func (h *SessionsHandler) SetQuality(ctx context.Context, input *QualityInput) (*SessionOutput, error) {
	ctrl, err := h.manager.Get(input.SessionID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}

	req := &TargetRequest{
		URL:     input.Body.URL,
		Mode:    input.Body.Mode,
		Quality: input.Body.Quality,
	}
	target, err := h.resolveTarget(ctx, ctrl.DeviceID(), req)
	if err != nil {
		return nil, mapResolveError(err)
	}
	target.Quality = input.Body.Quality

	if err := ctrl.BeginQualityChange(); err != nil {
		return nil, mapPlaybackError(err)
	}
	if err := ctrl.CommitQualityChange(target); err != nil {
		return nil, mapPlaybackError(err)
	}
	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

func (h *SessionsHandler) intent(sessionID string, fn func(*playback.Controller) error) (*SessionOutput, error) {
	ctrl, err := h.manager.Get(sessionID)
	if err != nil {
		return nil, mapPlaybackError(err)
	}
	if err := fn(ctrl); err != nil {
		return nil, mapPlaybackError(err)
	}
	return &SessionOutput{Body: ctrl.Snapshot()}, nil
}

// resolveTarget produces the stream target for a device: an explicit URL in
// the request wins, otherwise the resolver is consulted. Request overrides
// for mode and quality apply either way.
func (h *SessionsHandler) resolveTarget(ctx context.Context, deviceID string, req *TargetRequest) (playback.StreamTarget, error) {
	var target playback.StreamTarget

	if req != nil && req.URL != "" {
		target = playback.StreamTarget{
			URL:       req.URL,
			Mode:      playback.ParseStreamMode(req.Mode),
			Container: req.Container,
		}
	} else {
		resolved, err := h.resolver.Resolve(ctx, deviceID)
		if err != nil {
			return playback.StreamTarget{}, err
		}
		target = resolved
		if req != nil && req.Mode != "" {
			target.Mode = playback.ParseStreamMode(req.Mode)
		}
		if req != nil && req.Container != "" {
			target.Container = req.Container
		}
	}

	if req != nil && req.Quality != "" {
		target.Quality = req.Quality
	}
	return target, nil
}

func mapPlaybackError(err error) error {
	switch {
	case errors.Is(err, playback.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, playback.ErrDeviceBusy):
		return huma.Error409Conflict("device already has an active session")
	case errors.Is(err, playback.ErrSessionClosed):
		return huma.Error409Conflict("session is closed")
	case errors.Is(err, playback.ErrNoTarget):
		return huma.Error422UnprocessableEntity("no stream target")
	default:
		return huma.Error500InternalServerError("playback error", err)
	}
}

func mapResolveError(err error) error {
	if errors.Is(err, resolver.ErrDeviceNotFound) {
		return huma.Error404NotFound("device has no configured stream")
	}
	return huma.Error502BadGateway("resolving device stream", err)
}
