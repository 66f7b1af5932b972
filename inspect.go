package apppool

import (
	"time"

	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/process"
)

// CapacityUsed returns the number of process slots currently counted
// toward max, computed bottom-up across every group (spec.md §3 invariant
// 3).
func (p *Pool) CapacityUsed() int {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	return p.capacityUsedLocked()
}

// AtFullCapacity reports whether CapacityUsed has reached max.
func (p *Pool) AtFullCapacity() bool {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	return p.capacityUsedLocked() >= p.max
}

// GetProcessCount returns the total number of processes tracked across
// every group, including disabling and disabled ones.
func (p *Pool) GetProcessCount() int {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	count := 0
	for _, g := range p.groups {
		count += g.ProcessCount()
	}
	return count
}

// GetGroupCount returns the number of groups currently registered.
func (p *Pool) GetGroupCount() int {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	return len(p.groups)
}

// IsSpawning reports whether any group currently has a spawn attempt in
// flight.
func (p *Pool) IsSpawning() bool {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	for _, g := range p.groups {
		if g.Spawning() {
			return true
		}
	}
	return false
}

// GetProcesses returns every process tracked by every group, in no
// particular order.
func (p *Pool) GetProcesses() []*process.Process {
	p.syncher.Lock()
	groups := make([]*group.Group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.syncher.Unlock()

	var all []*process.Process
	for _, g := range groups {
		all = append(all, g.EnabledProcesses()...)
		all = append(all, g.DisablingProcesses()...)
		all = append(all, g.DisabledProcesses()...)
	}
	return all
}

// FindProcessByPid returns the process with the given OS pid, or nil.
func (p *Pool) FindProcessByPid(pid int) *process.Process {
	for _, proc := range p.GetProcesses() {
		if proc.PID == pid {
			return proc
		}
	}
	return nil
}

// FindProcessByGupid returns the process with the given gupid, or nil.
func (p *Pool) FindProcessByGupid(gupid string) *process.Process {
	for _, proc := range p.GetProcesses() {
		if proc.Gupid == gupid {
			return proc
		}
	}
	return nil
}

// FindGroupBySecret returns the group whose stable secret matches secret,
// or nil.
func (p *Pool) FindGroupBySecret(secret string) *group.Group {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	for _, g := range p.groups {
		if g.MatchesSecret(secret) {
			return g
		}
	}
	return nil
}

// GetGroup returns the group registered under name, or nil.
func (p *Pool) GetGroup(name string) *group.Group {
	p.syncher.Lock()
	defer p.syncher.Unlock()
	return p.groups[name]
}

// SetMax changes the pool's global capacity ceiling and, if it grew, drains
// the wait queue and runs opportunistic spawning (spec.md §8,
// "Idempotence: two successive set_max(n) with the same n have no
// observable effect beyond the first").
func (p *Pool) SetMax(n int) {
	p.syncher.Lock()
	if n == p.max {
		p.syncher.Unlock()
		return
	}
	grew := n > p.max
	p.max = n
	for _, g := range p.groups {
		g.SetPoolMax(n)
	}

	var actions []func()
	if grew {
		p.assignSessionsToGetWaitersLocked(&actions)
		p.possiblySpawnMoreForExistingGroupsLocked(&actions)
	}
	p.syncher.Unlock()
	runActions(actions)
}

// SetMaxIdleTime changes how long an idle process may sit before it is
// eligible for eviction.
func (p *Pool) SetMaxIdleTime(d time.Duration) {
	p.syncher.Lock()
	p.maxIdleTime = d
	p.syncher.Unlock()
}

// EnableSelfChecking toggles the invariant verifier (spec.md §4.7).
func (p *Pool) EnableSelfChecking(enabled bool) {
	p.syncher.Lock()
	p.selfChecking = enabled
	p.syncher.Unlock()
}
