package apppool

import (
	"log/slog"

	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/process"
)

// Initialize validates that the pool was constructed successfully and is
// ready to accept requests. NewPool already performs the work the
// original's separate construct-then-initialize split exists for, so this
// is kept for interface parity with spec.md §6 and panics if the pool has
// already moved past alive.
func (p *Pool) Initialize() error {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	if p.lifeStatus != lifeAlive {
		panic(newAssertionError("Initialize called on a pool in state %s", p.lifeStatus))
	}
	return nil
}

// PrepareForShutdown transitions the pool to prepared_for_shutdown. If
// abortLongRunningConnections is set, it is invoked once per enabled or
// disabling process (disabled processes are skipped). Every group's MinProcesses is forced to zero so groups are
// not respawned while the pool drains. Idempotent: calling it again after
// the first time has no further effect (spec.md §8, "Idempotence").
func (p *Pool) PrepareForShutdown(abortLongRunningConnections func(*process.Process)) {
	p.syncher.Lock()
	if p.lifeStatus != lifeAlive {
		p.syncher.Unlock()
		return
	}
	p.lifeStatus = lifePreparedForShutdown
	p.abortLongRunningConnections = abortLongRunningConnections

	groups := make([]*group.Group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	var processes []*process.Process
	if abortLongRunningConnections != nil {
		for _, g := range p.groups {
			processes = append(processes, g.EnabledProcesses()...)
			processes = append(processes, g.DisablingProcesses()...)
		}
	}
	p.syncher.Unlock()

	for _, g := range groups {
		g.SetMinProcesses(0)
	}
	for _, proc := range processes {
		abortLongRunningConnections(proc)
	}
}

// Destroy transitions the pool through shutting_down to shut_down: every
// registered group is detached by name, one at a time, then background
// threads are joined (interruptible ones cancelled first, non-interruptible
// ones simply waited on). Destroy is allowed from alive or
// prepared_for_shutdown; calling it a second time is a no-op (spec.md
// §4.6).
func (p *Pool) Destroy() {
	p.syncher.Lock()
	if p.lifeStatus == lifeShuttingDown || p.lifeStatus == lifeShutDown {
		p.syncher.Unlock()
		return
	}
	p.lifeStatus = lifeShuttingDown
	p.syncher.Unlock()

	for {
		p.syncher.Lock()
		var name string
		for n := range p.groups {
			name = n
			break
		}
		p.syncher.Unlock()
		if name == "" {
			break
		}
		p.DetachGroupByName(name)
	}

	p.interruptCancel()
	_ = p.interruptible.Wait()
	p.background.Wait()

	p.syncher.Lock()
	p.lifeStatus = lifeShutDown
	p.syncher.Unlock()
}

// InitDebugging rebuilds the pool's logger from its existing handler and
// logs a debug-level "debugging initialized" message through it. It does
// not change the handler or its level, so that message and other debug
// output appear only if the handler already accepts debug records.
func (p *Pool) InitDebugging() error {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	if p.logger != nil {
		p.logger = slog.New(p.logger.Handler())
	}
	p.logger.Debug("debugging initialized")
	return nil
}

// Close panics with an AssertionError if the pool has not fully shut down.
// The original requires destroying an alive pool to fail loudly (spec.md
// §4.6, §7 error kind 5); Go has no destructor to hook this into, so
// callers that want the same guarantee call Close explicitly before
// dropping their last reference to the pool, after Destroy.
func (p *Pool) Close() {
	p.syncher.Lock()
	status := p.lifeStatus
	p.syncher.Unlock()
	if status != lifeShutDown {
		panic(newAssertionError("pool destroyed while in state %s, must be shut_down", status))
	}
}
