package apppool

import (
	"context"
	"time"
)

// startBackgroundLoops launches the pool's two long-running maintenance
// loops (SPEC_FULL.md §5.1). The idle-process sweep registers into the
// non-interruptible registry since a pass that is already evicting
// processes should finish rather than abort halfway; the metrics-logging
// loop registers into the interruptible errgroup since cancelling it
// mid-sleep loses nothing.
func (p *Pool) startBackgroundLoops() {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		p.idleSweepLoop(p.interruptCtx)
	}()

	p.interruptible.Go(func() error {
		p.metricsLoop(p.interruptCtx)
		return nil
	})
}

// idleSweepLoop periodically detaches enabled processes that have been idle
// longer than maxIdleTime, as long as doing so would not drop a group below
// its configured MinProcesses. It checks for cancellation only between
// sweeps, never mid-sweep.
func (p *Pool) idleSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepIdleProcesses()
		}
	}
}

func (p *Pool) sweepIdleProcesses() {
	p.syncher.Lock()
	maxIdle := p.maxIdleTime
	if maxIdle <= 0 {
		p.syncher.Unlock()
		return
	}

	var actions []func()
	now := time.Now()
	for _, g := range p.groups {
		if g.WaitingForCapacity() {
			continue
		}
		min := g.Options().MinProcesses
		enabled := g.EnabledProcesses()
		if len(enabled) <= min {
			continue
		}
		for _, proc := range enabled {
			if len(g.EnabledProcesses()) <= min {
				break
			}
			if proc.Busy() || now.Sub(proc.IdleSince()) < maxIdle {
				continue
			}
			g.Detach(proc, &actions)
		}
	}
	p.assignSessionsToGetWaitersLocked(&actions)
	p.possiblySpawnMoreForExistingGroupsLocked(&actions)
	p.syncher.Unlock()

	runActions(actions)
}

// metricsLoop polls the optional system metrics collector on an interval
// and logs the result, stopping as soon as ctx is cancelled (spec.md §6,
// "system metrics collector: optional, polled at construction; failure is
// non-fatal").
func (p *Pool) metricsLoop(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.metrics.Collect(ctx)
			p.logger.Info("periodic system metrics", "cpu_percent", snap.CPUPercent, "mem_used_percent", snap.MemoryUsedPct)
		}
	}
}
