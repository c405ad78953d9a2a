//nolint:errcheck,wrapcheck,gosec // E2E test runner uses relaxed linting
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SSECollector collects playback events from the SSE endpoint in the
// background.
type SSECollector struct {
	baseURL    string
	httpClient *http.Client
	startTime  time.Time

	mu     sync.Mutex
	events []SessionEvent

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSSECollector creates a new SSE collector.
func NewSSECollector(baseURL string) *SSECollector {
	return &SSECollector{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 0}, // No timeout for SSE
		startTime:  time.Now(),
		done:       make(chan struct{}),
	}
}

// Start begins collecting SSE events in the background.
func (c *SSECollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("events stream returned status %d", resp.StatusCode)
	}

	go func() {
		defer resp.Body.Close()
		defer close(c.done)

		var kind string
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				kind = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				var payload struct {
					Kind    string  `json:"kind"`
					Session Session `json:"session"`
					Message string  `json:"message"`
				}
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					continue
				}
				if kind == "" {
					kind = payload.Kind
				}
				c.mu.Lock()
				c.events = append(c.events, SessionEvent{
					Timestamp: time.Now(),
					Kind:      kind,
					Session:   payload.Session,
					Message:   payload.Message,
				})
				c.mu.Unlock()
				kind = ""
			}
		}
	}()

	return nil
}

// Stop terminates the SSE connection and waits for the reader to exit.
func (c *SSECollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
}

// Events returns a copy of all captured events.
func (c *SSECollector) Events() []SessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionEvent, len(c.events))
	copy(out, c.events)
	return out
}

// EventsSince returns captured events with a timestamp at or after t.
func (c *SSECollector) EventsSince(t time.Time) []SessionEvent {
	var out []SessionEvent
	for _, ev := range c.Events() {
		if !ev.Timestamp.Before(t) {
			out = append(out, ev)
		}
	}
	return out
}

// WaitFor blocks until an event matching the predicate has been captured
// or the timeout expires. Already-captured events count.
func (c *SSECollector) WaitFor(timeout time.Duration, match func(SessionEvent) bool) (SessionEvent, error) {
	deadline := time.Now().Add(timeout)
	seen := 0
	for {
		events := c.Events()
		for ; seen < len(events); seen++ {
			if match(events[seen]) {
				return events[seen], nil
			}
		}
		if time.Now().After(deadline) {
			return SessionEvent{}, fmt.Errorf("no matching event within %v (%d events seen)", timeout, len(events))
		}
		time.Sleep(PollInterval)
	}
}

// PrintTimeline prints the captured events in arrival order.
func (c *SSECollector) PrintTimeline() {
	events := c.Events()
	if len(events) == 0 {
		return
	}
	fmt.Println("\n--- Event Timeline ---")
	for _, ev := range events {
		offset := ev.Timestamp.Sub(c.startTime).Seconds()
		line := fmt.Sprintf("%8.2fs  %-9s %s  device=%s lifecycle=%s transport=%s retries=%d",
			offset, ev.Kind, ev.Session.ID, ev.Session.DeviceID,
			ev.Session.Lifecycle, ev.Session.Transport, ev.Session.RetryCount)
		if ev.Message != "" {
			line += fmt.Sprintf("  msg=%q", ev.Message)
		}
		fmt.Println(line)
	}
	fmt.Println("---")
}
