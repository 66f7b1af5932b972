package group

import (
	"context"

	"github.com/drewolson/apppool/process"
	"github.com/drewolson/apppool/session"
	"github.com/drewolson/apppool/spawner"
)

// Spawn asks the group to start one more process, asynchronously. It is a
// no-op if a spawn is already in flight or the group is already at its
// effective maximum (spec.md §4.3/§4.9): the pool calls this unconditionally
// whenever it merely suspects a group could use another process, and it is
// the group's job to decide locally whether that is actually true.
func (g *Group) Spawn() {
	g.mu.Lock()
	if g.spawning {
		g.mu.Unlock()
		return
	}
	max := g.options.effectiveMax(g.poolMax)
	if max > 0 && g.capacityUsedLocked() >= max {
		g.mu.Unlock()
		return
	}
	g.spawning = true
	opts := g.options
	ctx := g.ctx
	g.mu.Unlock()

	safeGo(g, func() { g.runSpawn(ctx, opts) })
}

// spawnProcess performs one synchronous spawn attempt against the group's
// factory. It is the shared primitive behind the asynchronous Spawn loop
// and Restart, which needs to wait for a replacement before detaching the
// process it is replacing.
func (g *Group) spawnProcess(ctx context.Context, opts Options) (*process.Process, error) {
	if len(opts.StartCommand) == 0 {
		return nil, ErrNoStartCommand
	}
	sp := g.factory.SpawnerFor(g.name)
	return sp.Spawn(ctx, spawner.Options{
		AppGroupName: g.name,
		AppRoot:      opts.AppRoot,
		StartCommand: opts.StartCommand,
		Env:          opts.Env,
	})
}

func (g *Group) runSpawn(ctx context.Context, opts Options) {
	p, err := g.spawnProcess(ctx, opts)

	g.mu.Lock()
	g.spawning = false

	if err != nil {
		g.mu.Unlock()
		g.logger.Warn("spawn failed", "error", err)

		var actions []func()
		g.drainWaitlistWithError(err, &actions)
		for _, action := range actions {
			action()
		}
		g.notifier.CapacityFreed()
		return
	}

	p.SetState(process.Enabled)
	g.enabled = append(g.enabled, p)

	var waiter *Waiter
	if len(g.waitlist) > 0 {
		w := g.waitlist[0]
		g.waitlist = g.waitlist[1:]
		waiter = &w
	}
	g.mu.Unlock()

	g.logger.Debug("spawned process", "pid", p.PID, "gupid", p.Gupid)

	if waiter != nil {
		waiter.Callback(session.New(p, g), nil)
	}
	g.notifier.CapacityFreed()
}
