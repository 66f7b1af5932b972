package group

import (
	"context"

	"github.com/drewolson/apppool/process"
	"github.com/drewolson/apppool/session"
)

// Restart replaces this group's processes with fresh ones started from opts
// (spec.md §4.5). RestartBlocking detaches every existing process first and
// only then spawns replacements, so requests queue on the group's wait list
// until the first replacement is ready. RestartRolling spawns each
// replacement before detaching the process it supersedes, keeping at least
// one enabled process serving requests throughout. RestartDefault behaves
// like RestartRolling, since a group with no explicit preference should
// never go fully dark mid-restart.
//
// Restart runs synchronously from the caller's goroutine and does not hold
// g.mu while spawning, since a spawn attempt can block for a long time; the
// pool is expected to call this from its own background goroutine registry,
// not from inside a lock.
func (g *Group) Restart(ctx context.Context, opts Options, method RestartMethod) error {
	g.mu.Lock()
	if g.restarting {
		g.mu.Unlock()
		return nil
	}
	g.restarting = true
	if method == RestartDefault {
		method = RestartRolling
	}
	previous := append([]*process.Process(nil), g.enabled...)
	g.options = opts
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.restarting = false
		g.mu.Unlock()
		g.notifier.CapacityFreed()
	}()

	if method == RestartBlocking {
		return g.restartBlocking(ctx, opts, previous)
	}
	return g.restartRolling(ctx, opts, previous)
}

func (g *Group) restartBlocking(ctx context.Context, opts Options, previous []*process.Process) error {
	var actions []func()
	for _, p := range previous {
		g.Detach(p, &actions)
	}
	for _, action := range actions {
		action()
	}

	target := opts.MinProcesses
	if target < 1 {
		target = 1
	}
	for i := 0; i < target; i++ {
		if err := g.spawnReplacement(ctx, opts); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) restartRolling(ctx context.Context, opts Options, previous []*process.Process) error {
	if len(previous) == 0 {
		target := opts.MinProcesses
		if target < 1 {
			target = 1
		}
		for i := 0; i < target; i++ {
			if err := g.spawnReplacement(ctx, opts); err != nil {
				return err
			}
		}
		return nil
	}

	for _, old := range previous {
		if err := g.spawnReplacement(ctx, opts); err != nil {
			return err
		}
		var actions []func()
		g.Detach(old, &actions)
		for _, action := range actions {
			action()
		}
	}
	return nil
}

// spawnReplacement spawns one process synchronously and enrolls it as
// enabled, handing it straight to the oldest waiter if the group's wait
// list is non-empty.
func (g *Group) spawnReplacement(ctx context.Context, opts Options) error {
	p, err := g.spawnProcess(ctx, opts)
	if err != nil {
		g.logger.Warn("restart: replacement spawn failed", "error", err)
		return err
	}
	p.SetState(process.Enabled)

	g.mu.Lock()
	g.enabled = append(g.enabled, p)
	var waiter *Waiter
	if len(g.waitlist) > 0 {
		w := g.waitlist[0]
		g.waitlist = g.waitlist[1:]
		waiter = &w
	}
	g.mu.Unlock()

	if waiter != nil {
		waiter.Callback(session.New(p, g), nil)
	}
	g.notifier.CapacityFreed()
	return nil
}
