//nolint:errcheck,wrapcheck,gosec // E2E test runner uses relaxed linting
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient wraps HTTP calls to the streamwatch API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the API is accessible and reports a healthy status.
func (c *APIClient) HealthCheck(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("health status is %q, expected healthy", health.Status)
	}
	return nil
}

// Version fetches the server version string.
func (c *APIClient) Version(ctx context.Context) (string, error) {
	var info struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/v1/version", &info); err != nil {
		return "", err
	}
	return info.Version, nil
}

// CreateSession creates a playback session for a device. An empty url lets
// the server resolve the device's stream.
func (c *APIClient) CreateSession(ctx context.Context, deviceID, url string, autostart bool) (Session, error) {
	body := map[string]any{
		"device_id": deviceID,
		"autostart": autostart,
	}
	if url != "" {
		body["url"] = url
	}
	return c.postSession(ctx, "/api/v1/sessions", body, http.StatusCreated, http.StatusOK)
}

// GetSession fetches the current session snapshot.
func (c *APIClient) GetSession(ctx context.Context, id string) (Session, error) {
	var s Session
	err := c.getJSON(ctx, "/api/v1/sessions/"+id, &s)
	return s, err
}

// ListSessions fetches all open sessions.
func (c *APIClient) ListSessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.getJSON(ctx, "/api/v1/sessions", &out)
	return out.Sessions, err
}

// Intent posts a bodyless session intent: start, pause, resume, restart,
// gesture.
func (c *APIClient) Intent(ctx context.Context, id, intent string) (Session, error) {
	return c.postSession(ctx, "/api/v1/sessions/"+id+"/"+intent, nil, http.StatusOK)
}

// SetVisibility reports visibility of the session's playback surface.
func (c *APIClient) SetVisibility(ctx context.Context, id string, visible bool) (Session, error) {
	body := map[string]any{"visible": visible}
	return c.postSession(ctx, "/api/v1/sessions/"+id+"/visibility", body, http.StatusOK)
}

// SetQuality switches the session to a different quality tier.
func (c *APIClient) SetQuality(ctx context.Context, id, quality string) (Session, error) {
	body := map[string]any{"quality": quality}
	return c.postSession(ctx, "/api/v1/sessions/"+id+"/quality", body, http.StatusOK)
}

// CloseSession deletes the session.
func (c *APIClient) CloseSession(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/api/v1/sessions/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("close session returned status %d", resp.StatusCode)
	}
	return nil
}

// SessionHistory fetches persisted events for a session.
func (c *APIClient) SessionHistory(ctx context.Context, id string) ([]HistoryEvent, error) {
	var out struct {
		Events []HistoryEvent `json:"events"`
		Count  int            `json:"count"`
	}
	err := c.getJSON(ctx, "/api/v1/sessions/"+id+"/history", &out)
	return out.Events, err
}

// WaitForSession polls the session until cond holds or the timeout expires.
// The last observed snapshot is returned either way.
func (c *APIClient) WaitForSession(ctx context.Context, id string, timeout time.Duration, cond func(Session) bool) (Session, error) {
	deadline := time.Now().Add(timeout)
	var last Session
	for {
		s, err := c.GetSession(ctx, id)
		if err != nil {
			return last, err
		}
		last = s
		if cond(s) {
			return s, nil
		}
		if time.Now().After(deadline) {
			return last, fmt.Errorf("condition not met within %v (lifecycle=%s transport=%s active=%v retries=%d last_error=%q)",
				timeout, last.Lifecycle, last.Transport, last.Active, last.RetryCount, last.LastError)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) postSession(ctx context.Context, path string, body any, okStatuses ...int) (Session, error) {
	var s Session

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return s, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, reader)
	if err != nil {
		return s, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()

	ok := false
	for _, status := range okStatuses {
		if resp.StatusCode == status {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(resp.Body)
		return s, fmt.Errorf("POST %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return s, err
	}
	return s, nil
}
