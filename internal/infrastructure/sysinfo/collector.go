package sysinfo

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is the process host's resource snapshot reported by /health.
// Fields a platform cannot provide stay zero.
type HostStats struct {
	Hostname    string  `json:"hostname,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	Uptime      uint64  `json:"uptime_seconds"`
	RAMTotal    uint64  `json:"ram_total"`
	RAMUsed     uint64  `json:"ram_used"`
	RAMUsage    float64 `json:"ram_usage_percent"`
	Load1       float64 `json:"load1"`
	Load5       float64 `json:"load5"`
	Load15      float64 `json:"load15"`
	CollectedAt int64   `json:"collected_at"`
}

func Collect(ctx context.Context) HostStats {
	stats := HostStats{CollectedAt: time.Now().Unix()}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.RAMTotal = memInfo.Total
		stats.RAMUsed = memInfo.Used
		stats.RAMUsage = memInfo.UsedPercent
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.Load1 = avg.Load1
		stats.Load5 = avg.Load5
		stats.Load15 = avg.Load15
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = info.Hostname
		stats.Platform = info.Platform
		stats.Uptime = info.Uptime
	}

	return stats
}
