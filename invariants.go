package apppool

// verifyInvariantsLocked performs the cheap self-checks from spec.md §4.7:
// no wait-queue entry targets a group that already exists, and a
// non-empty pool-level wait queue implies the pool is at full capacity
// (P1, P2). It is a no-op when selfChecking is disabled. Callers must hold
// p.syncher.
func (p *Pool) verifyInvariantsLocked() {
	if !p.selfChecking {
		return
	}
	for _, w := range p.waitlist {
		if _, ok := p.groups[w.options.AppGroupName]; ok {
			panic(newAssertionError("wait-queue entry targets group %q which already exists", w.options.AppGroupName))
		}
	}
	if len(p.waitlist) > 0 && p.capacityUsedLocked() < p.max {
		panic(newAssertionError("wait queue is non-empty but pool is not at full capacity (%d/%d)", p.capacityUsedLocked(), p.max))
	}
}

// verifyExpensiveInvariantsLocked additionally recomputes capacity_used
// bottom-up from each group's process lists and cross-checks it against
// CapacityUsed (P3). Nothing in the module calls it; only
// verifyInvariantsLocked runs on every mutator.
func (p *Pool) verifyExpensiveInvariantsLocked() {
	if !p.selfChecking {
		return
	}
	p.verifyInvariantsLocked()

	recomputed := 0
	for _, g := range p.groups {
		recomputed += len(g.EnabledProcesses()) + len(g.DisablingProcesses())
	}
	if recomputed != p.capacityUsedLocked() {
		panic(newAssertionError("capacity_used mismatch: bottom-up %d vs cached %d", recomputed, p.capacityUsedLocked()))
	}
}
