package apppool

import (
	"github.com/drewolson/apppool/group"
)

// AsyncGet is the pool's request router (spec.md §4.1). callback is invoked
// exactly once, with either a session or an error, never both. AsyncGet
// itself never fails; the router's own failures are delivered through
// callback.
func (p *Pool) AsyncGet(opts GetOptions, callback GetCallback) {
	p.syncher.Lock()
	if p.lifeStatus == lifeShutDown {
		p.syncher.Unlock()
		panic(newAssertionError("AsyncGet called on a pool that is shut_down"))
	}
	var actions []func()
	p.verifyInvariantsLocked()

	if g, ok := p.groups[opts.AppGroupName]; ok {
		p.delegateToGroupLocked(g, opts, callback, &actions)
		p.verifyInvariantsLocked()
		p.syncher.Unlock()
		runActions(actions)
		return
	}

	if p.capacityUsedLocked() < p.max {
		g := p.newGroupLocked(opts)
		p.delegateToGroupLocked(g, opts, callback, &actions)
		p.verifyInvariantsLocked()
		p.syncher.Unlock()
		runActions(actions)
		return
	}

	if freed := p.forceFreeCapacityLocked("", &actions); freed != nil {
		g := p.newGroupLocked(opts)
		p.delegateToGroupLocked(g, opts, callback, &actions)
		p.verifyInvariantsLocked()
		p.syncher.Unlock()
		runActions(actions)
		return
	}

	p.waitlist = append(p.waitlist, poolWaiter{options: opts.CopyAndPersist(), callback: callback})
	p.verifyInvariantsLocked()
	p.syncher.Unlock()
}

// delegateToGroupLocked hands opts to g, scheduling callback's invocation
// as a post-lock action if the group produced a session synchronously.
// Callers must hold p.syncher.
func (p *Pool) delegateToGroupLocked(g *group.Group, opts GetOptions, callback GetCallback, actions *[]func()) {
	sess := g.Get(opts, callback, actions)
	if sess != nil {
		*actions = append(*actions, func() { callback(sess, nil) })
	}
}

// newGroupLocked creates and registers a group for opts.AppGroupName.
// Callers must hold p.syncher.
func (p *Pool) newGroupLocked(opts GetOptions) *group.Group {
	g := group.New(opts, p.max, p.factory, p, p.logger)
	p.groups[opts.AppGroupName] = g
	return g
}

// Get is the synchronous wrapper over AsyncGet: it blocks on a rendezvous
// ticket until the callback fires (spec.md §6, §9 "synchronous-over-
// asynchronous rendezvous").
func (p *Pool) Get(opts GetOptions) (*Session, error) {
	t := newTicket()
	p.AsyncGet(opts, t.deliver)
	return t.wait()
}

// FindOrCreateGroup ensures a group named opts.AppGroupName exists,
// returning a handle to it without binding a session (opts.Noop is forced
// to true regardless of the caller's value).
func (p *Pool) FindOrCreateGroup(opts GetOptions) *group.Group {
	opts.Noop = true
	p.syncher.Lock()
	defer p.syncher.Unlock()

	if g, ok := p.groups[opts.AppGroupName]; ok {
		return g
	}
	return p.newGroupLocked(opts)
}

// assignSessionsToGetWaitersLocked drains the pool-level wait queue in FIFO
// order (spec.md §4.2). Callers must hold p.syncher.
func (p *Pool) assignSessionsToGetWaitersLocked(actions *[]func()) {
	pending := p.waitlist
	p.waitlist = nil

	var requeue []poolWaiter
	for _, w := range pending {
		if g, ok := p.groups[w.options.AppGroupName]; ok {
			p.delegateToGroupLocked(g, w.options, w.callback, actions)
			continue
		}
		if p.capacityUsedLocked() < p.max {
			g := p.newGroupLocked(w.options)
			p.delegateToGroupLocked(g, w.options, w.callback, actions)
			continue
		}
		requeue = append(requeue, w)
	}
	p.waitlist = requeue
}

// possiblySpawnMoreForExistingGroupsLocked runs the two opportunistic-spawn
// passes described in spec.md §4.3. Callers must hold p.syncher.
func (p *Pool) possiblySpawnMoreForExistingGroupsLocked(actions *[]func()) {
	for _, g := range p.groups {
		if p.capacityUsedLocked() >= p.max {
			return
		}
		if g.WaitingForCapacity() {
			g.Spawn()
		}
	}
	for _, g := range p.groups {
		if p.capacityUsedLocked() >= p.max {
			return
		}
		if g.ShouldSpawn() {
			g.Spawn()
		}
	}
}

func (p *Pool) capacityUsedLocked() int {
	used := 0
	for _, g := range p.groups {
		used += g.CapacityUsed()
	}
	return used
}
