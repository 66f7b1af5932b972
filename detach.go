package apppool

import (
	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/process"
)

// DetachProcess removes proc from its owning group and sends it SIGTERM
// after the pool lock is released, then drains the pool wait queue and runs opportunistic spawning
// (spec.md §4.5). Returns false if proc was already detached.
func (p *Pool) DetachProcess(proc *process.Process) bool {
	return p.detachProcess(proc)
}

// DetachProcessByPID is DetachProcess, looking the process up by OS pid.
func (p *Pool) DetachProcessByPID(pid int) bool {
	if proc := p.FindProcessByPid(pid); proc != nil {
		return p.detachProcess(proc)
	}
	return false
}

// DetachProcessByGupid is DetachProcess, looking the process up by gupid.
func (p *Pool) DetachProcessByGupid(gupid string) bool {
	if proc := p.FindProcessByGupid(gupid); proc != nil {
		return p.detachProcess(proc)
	}
	return false
}

func (p *Pool) detachProcess(proc *process.Process) bool {
	if proc == nil || !proc.Alive() {
		return false
	}

	p.syncher.Lock()
	var actions []func()
	p.verifyInvariantsLocked()

	g, ok := p.groups[proc.GroupName]
	if !ok || !proc.Alive() {
		p.syncher.Unlock()
		return false
	}
	g.Detach(proc, &actions)
	p.assignSessionsToGetWaitersLocked(&actions)
	p.possiblySpawnMoreForExistingGroupsLocked(&actions)
	p.verifyInvariantsLocked()
	p.syncher.Unlock()

	runActions(actions)
	return true
}

// DetachGroupByName removes the named group from the registry, aborts
// every waiter parked on it with group.ErrGetAborted, and blocks until the
// group's asynchronous shutdown finishes (spec.md §4.5,
// "DetachGroupWaitTicket"). Returns false if no such group exists.
func (p *Pool) DetachGroupByName(name string) bool {
	p.syncher.Lock()
	var actions []func()
	p.verifyInvariantsLocked()

	g, ok := p.groups[name]
	if !ok {
		p.syncher.Unlock()
		return false
	}
	g.DrainWaitlistWithError(group.ErrGetAborted, &actions)
	delete(p.groups, name)

	t := newDetachGroupTicket()
	g.Shutdown(t.deliver, &actions)

	p.assignSessionsToGetWaitersLocked(&actions)
	p.possiblySpawnMoreForExistingGroupsLocked(&actions)
	p.verifyInvariantsLocked()
	p.syncher.Unlock()

	runActions(actions)
	t.wait()
	return true
}

// DetachGroupBySecret is DetachGroupByName, looking the group up by its
// stable opaque secret instead of its name.
func (p *Pool) DetachGroupBySecret(secret string) bool {
	p.syncher.Lock()
	var name string
	for n, g := range p.groups {
		if g.MatchesSecret(secret) {
			name = n
			break
		}
	}
	p.syncher.Unlock()

	if name == "" {
		return false
	}
	return p.DetachGroupByName(name)
}

// DisableProcess asks the owning group to stop handing gupid's process new
// sessions (spec.md §4.5). If the group defers the decision until the
// process's last session closes, DisableProcess blocks on a rendezvous
// ticket for the final result.
func (p *Pool) DisableProcess(gupid string) group.DisableResult {
	proc := p.FindProcessByGupid(gupid)
	if proc == nil {
		return group.DisableNoop
	}

	p.syncher.Lock()
	g, ok := p.groups[proc.GroupName]
	p.syncher.Unlock()
	if !ok {
		return group.DisableNoop
	}

	t := newDisableTicket()
	result := g.Disable(proc, func(_ *process.Process, r group.DisableResult) {
		t.deliver(r)
	})
	if result != group.DisableDeferred {
		return result
	}
	return t.wait()
}

// RestartGroupByName asks the named group to restart using method, unless
// it is already restarting. The restart runs on the pool's interruptible
// background registry so a slow spawn cannot block the caller; Destroy
// cancels an in-flight restart.
func (p *Pool) RestartGroupByName(name string, opts GetOptions, method group.RestartMethod) bool {
	p.syncher.Lock()
	g, ok := p.groups[name]
	ctx := p.interruptCtx
	p.syncher.Unlock()
	if !ok || g.Restarting() {
		return false
	}

	p.interruptible.Go(func() error {
		return g.Restart(ctx, opts, method)
	})
	return true
}

// RestartGroupsByAppRoot restarts every group whose configured AppRoot
// matches root, returning the number of groups asked to restart.
func (p *Pool) RestartGroupsByAppRoot(root string, opts GetOptions, method group.RestartMethod) int {
	p.syncher.Lock()
	var matching []*group.Group
	for _, g := range p.groups {
		if g.Options().AppRoot == root && !g.Restarting() {
			matching = append(matching, g)
		}
	}
	ctx := p.interruptCtx
	p.syncher.Unlock()

	for _, g := range matching {
		g := g
		p.interruptible.Go(func() error {
			return g.Restart(ctx, opts, method)
		})
	}
	return len(matching)
}
