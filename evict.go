package apppool

import (
	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/process"
)

// forceFreeCapacityLocked picks the globally oldest idle worker outside
// excludeGroup and detaches it via its owning group (spec.md §4.4). Returns
// the detached process, or nil if none was eligible. Callers must hold
// p.syncher; any post-lock actions the detach produces are appended to
// actions.
func (p *Pool) forceFreeCapacityLocked(excludeGroup string, actions *[]func()) *process.Process {
	var bestGroup *group.Group
	var best *process.Process

	for name, g := range p.groups {
		if name == excludeGroup {
			continue
		}
		if g.WaitingForCapacity() {
			// Detaching out from under a group's own waiters would strand
			// them (spec.md §4.4 precondition).
			continue
		}
		for _, cand := range g.EnabledProcesses() {
			if cand.Busy() {
				continue
			}
			if best == nil ||
				cand.IdleSince().Before(best.IdleSince()) ||
				(cand.IdleSince().Equal(best.IdleSince()) && cand.PID < best.PID) {
				best = cand
				bestGroup = g
			}
		}
	}

	if best == nil {
		return nil
	}

	bestGroup.Detach(best, actions)
	return best
}
