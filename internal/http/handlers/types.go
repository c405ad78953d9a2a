// Package handlers provides the streamwatch HTTP API handlers.
package handlers

import (
	"github.com/angelstreet/streamwatch/internal/playback"
)

// SessionResponse is the API view of one playback session.
type SessionResponse = playback.Snapshot

// SessionListBody wraps the session list.
type SessionListBody struct {
	Sessions []SessionResponse `json:"sessions"`
}

// MessageBody is a plain acknowledgement payload.
type MessageBody struct {
	Message string `json:"message"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo reports host load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports host and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo reports this process's memory footprint.
type ProcessMemoryInfo struct {
	ResidentMB         float64 `json:"resident_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// HealthComponents groups per-component health blocks.
type HealthComponents struct {
	Database        DatabaseHealth         `json:"database"`
	Sessions        playback.ManagerStats  `json:"sessions"`
	Events          EventHubHealth         `json:"events"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
}

// DatabaseHealth reports connection pool state and ping latency.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
}

// EventHubHealth reports event fan-out load.
type EventHubHealth struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// CircuitBreakerStatus reports one upstream breaker's state.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
