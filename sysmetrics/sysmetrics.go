// Package sysmetrics polls coarse host resource usage on demand (the pool
// polls at construction and then periodically), so spawn-policy decisions can later be informed by how much
// headroom the host actually has. Collection is best-effort: a failure here
// must never prevent the pool from starting (spec.md §6, "System metrics
// collector ... failure is non-fatal").
package sysmetrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time read of host resource usage.
type Snapshot struct {
	CPUCount       int
	CPUPercent     float64
	MemoryTotal    uint64
	MemoryUsed     uint64
	MemoryUsedPct  float64
	CollectedAt    time.Time
	CollectFailure error
}

// Collector takes a fresh host snapshot on every Collect call; it keeps no
// cached result.
type Collector struct {
	logger *slog.Logger
}

// New returns a Collector that logs collection failures through logger. A
// nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// Collect takes a single snapshot. It never returns an error: any failure
// is recorded on Snapshot.CollectFailure and logged at Warn, matching how
// the original Pool constructor treats SystemMetricsCollector.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{CollectedAt: time.Now()}

	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		c.logger.Warn("unable to collect cpu metrics", "error", err)
		snap.CollectFailure = err
	} else {
		snap.CPUCount = len(percentages)
		if len(percentages) > 0 {
			snap.CPUPercent = percentages[0]
		}
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("unable to collect memory metrics", "error", err)
		if snap.CollectFailure == nil {
			snap.CollectFailure = err
		}
		return snap
	}
	snap.MemoryTotal = vm.Total
	snap.MemoryUsed = vm.Used
	snap.MemoryUsedPct = vm.UsedPercent

	return snap
}
