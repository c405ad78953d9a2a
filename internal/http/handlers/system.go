package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/angelstreet/streamwatch/pkg/format"
)

// SystemHandler handles the system stats endpoint.
type SystemHandler struct {
	startTime time.Time
}

// NewSystemHandler creates a system handler.
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{startTime: time.Now()}
}

// SystemStatsInput is the input for the system stats endpoint.
type SystemStatsInput struct{}

// SystemStatsOutput is the output for the system stats endpoint.
type SystemStatsOutput struct {
	Body SystemStatsResponse
}

// SystemStatsResponse describes the host and the Go runtime.
type SystemStatsResponse struct {
	Host    HostStats    `json:"host"`
	CPU     CPUStats     `json:"cpu"`
	Memory  MemoryStats  `json:"memory"`
	Runtime RuntimeStats `json:"runtime"`
}

// HostStats describes the host machine.
type HostStats struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Uptime          string `json:"uptime"`
}

// CPUStats describes the host CPUs.
type CPUStats struct {
	Model        string  `json:"model,omitempty"`
	PhysicalCPUs int     `json:"physical_cpus"`
	LogicalCPUs  int     `json:"logical_cpus"`
	UsagePercent float64 `json:"usage_percent"`
}

// MemoryStats describes host memory, humanized for display.
type MemoryStats struct {
	Total       string  `json:"total"`
	Used        string  `json:"used"`
	Available   string  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// RuntimeStats describes this Go process.
type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    string `json:"heap_alloc"`
	HeapSys      string `json:"heap_sys"`
	GCCycles     uint32 `json:"gc_cycles"`
	ServiceStart string `json:"service_uptime"`
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemStats",
		Method:      "GET",
		Path:        "/api/v1/system/stats",
		Summary:     "System statistics",
		Description: "Returns host, CPU, memory, and Go runtime statistics",
		Tags:        []string{"System"},
	}, h.GetSystemStats)
}

// GetSystemStats returns host and runtime statistics.
func (h *SystemHandler) GetSystemStats(ctx context.Context, _ *SystemStatsInput) (*SystemStatsOutput, error) {
	return &SystemStatsOutput{
		Body: SystemStatsResponse{
			Host:    h.getHostStats(ctx),
			CPU:     h.getCPUStats(ctx),
			Memory:  h.getMemoryStats(ctx),
			Runtime: h.getRuntimeStats(),
		},
	}, nil
}

func (h *SystemHandler) getHostStats(ctx context.Context) HostStats {
	stats := HostStats{OS: runtime.GOOS}

	info, err := host.InfoWithContext(ctx)
	if err == nil && info != nil {
		stats.Hostname = info.Hostname
		stats.Platform = info.Platform
		stats.PlatformVersion = info.PlatformVersion
		stats.KernelVersion = info.KernelVersion
		stats.Uptime = format.Uptime(time.Duration(info.Uptime) * time.Second)
	}
	return stats
}

func (h *SystemHandler) getCPUStats(ctx context.Context) CPUStats {
	stats := CPUStats{LogicalCPUs: runtime.NumCPU()}

	if counts, err := cpu.CountsWithContext(ctx, false); err == nil {
		stats.PhysicalCPUs = counts
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		stats.Model = infos[0].ModelName
	}
	// Instantaneous (non-blocking) usage sample since the last call.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.UsagePercent = percents[0]
	}
	return stats
}

func (h *SystemHandler) getMemoryStats(ctx context.Context) MemoryStats {
	stats := MemoryStats{}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil && vmStat != nil {
		stats.Total = format.Bytes(vmStat.Total)
		stats.Used = format.Bytes(vmStat.Used)
		stats.Available = format.Bytes(vmStat.Available)
		stats.UsedPercent = vmStat.UsedPercent
	}
	return stats
}

func (h *SystemHandler) getRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    format.Bytes(memStats.HeapAlloc),
		HeapSys:      format.Bytes(memStats.HeapSys),
		GCCycles:     memStats.NumGC,
		ServiceStart: format.Uptime(time.Since(h.startTime)),
	}
}
