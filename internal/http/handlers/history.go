package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/angelstreet/streamwatch/internal/models"
	"github.com/angelstreet/streamwatch/internal/repository"
)

// defaultHistoryLimit caps history queries when the configuration does not
// set one.
const defaultHistoryLimit = 100

// HistoryHandler serves persisted playback event history.
type HistoryHandler struct {
	events repository.PlaybackEventRepository
	limit  int
}

// NewHistoryHandler creates a history handler. limit is the maximum page
// size; values below 1 fall back to the default.
func NewHistoryHandler(events repository.PlaybackEventRepository, limit int) *HistoryHandler {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	return &HistoryHandler{events: events, limit: limit}
}

// SessionHistoryInput is the input for session-scoped history.
type SessionHistoryInput struct {
	SessionID string `path:"session_id" doc:"Session ID"`
	Limit     int    `query:"limit" minimum:"1" doc:"Maximum number of events to return"`
}

// DeviceHistoryInput is the input for device-scoped history.
type DeviceHistoryInput struct {
	DeviceID string `path:"device_id" doc:"Device ID"`
	Limit    int    `query:"limit" minimum:"1" doc:"Maximum number of events to return"`
}

// RecentHistoryInput is the input for recent events across all sessions.
type RecentHistoryInput struct {
	Limit int `query:"limit" minimum:"1" doc:"Maximum number of events to return"`
}

// HistoryBody wraps an event history page, newest first.
type HistoryBody struct {
	Events []*models.PlaybackEvent `json:"events"`
	Count  int                     `json:"count"`
}

// HistoryOutput is the output for history queries.
type HistoryOutput struct {
	Body HistoryBody
}

// Register registers the history routes with the API.
func (h *HistoryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSessionHistory",
		Method:      "GET",
		Path:        "/api/v1/sessions/{session_id}/history",
		Summary:     "Session event history",
		Description: "Returns the most recent persisted events for a session, newest first",
		Tags:        []string{"History"},
	}, h.SessionHistory)

	huma.Register(api, huma.Operation{
		OperationID: "getDeviceHistory",
		Method:      "GET",
		Path:        "/api/v1/devices/{device_id}/history",
		Summary:     "Device event history",
		Description: "Returns the most recent persisted events for a device across all of its sessions",
		Tags:        []string{"History"},
	}, h.DeviceHistory)

	huma.Register(api, huma.Operation{
		OperationID: "getRecentHistory",
		Method:      "GET",
		Path:        "/api/v1/history",
		Summary:     "Recent events",
		Description: "Returns the most recent persisted events across all sessions",
		Tags:        []string{"History"},
	}, h.RecentHistory)
}

// SessionHistory returns recent events for one session.
func (h *HistoryHandler) SessionHistory(ctx context.Context, input *SessionHistoryInput) (*HistoryOutput, error) {
	events, err := h.events.ListBySession(ctx, input.SessionID, h.clampLimit(input.Limit))
	if err != nil {
		return nil, huma.Error500InternalServerError("querying session history", err)
	}
	return historyOutput(events), nil
}

// DeviceHistory returns recent events for one device.
func (h *HistoryHandler) DeviceHistory(ctx context.Context, input *DeviceHistoryInput) (*HistoryOutput, error) {
	events, err := h.events.ListByDevice(ctx, input.DeviceID, h.clampLimit(input.Limit))
	if err != nil {
		return nil, huma.Error500InternalServerError("querying device history", err)
	}
	return historyOutput(events), nil
}

// RecentHistory returns recent events across all sessions.
func (h *HistoryHandler) RecentHistory(ctx context.Context, input *RecentHistoryInput) (*HistoryOutput, error) {
	events, err := h.events.ListRecent(ctx, h.clampLimit(input.Limit))
	if err != nil {
		return nil, huma.Error500InternalServerError("querying recent history", err)
	}
	return historyOutput(events), nil
}

func (h *HistoryHandler) clampLimit(limit int) int {
	if limit < 1 || limit > h.limit {
		return h.limit
	}
	return limit
}

func historyOutput(events []*models.PlaybackEvent) *HistoryOutput {
	if events == nil {
		events = []*models.PlaybackEvent{}
	}
	return &HistoryOutput{Body: HistoryBody{Events: events, Count: len(events)}}
}
