package group

import "github.com/drewolson/apppool/process"

// Disable asks the group to stop handing p new sessions. If p is already
// idle it moves straight to the disabled list and returns DisableSuccess.
// If p still has sessions in flight, it moves to the disabling list and the
// final result is delivered later, once the last session on it closes,
// through callback (spec.md §4.5: DisableResult enumerates
// {success, deferred, error, noop}).
func (g *Group) Disable(p *process.Process, callback DisableCallback) DisableResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !containsProcess(g.enabled, p) {
		if containsProcess(g.disabling, p) || containsProcess(g.disabled, p) {
			return DisableSuccess
		}
		return DisableNoop
	}

	if !p.Busy() {
		g.enabled = removeProcess(g.enabled, p)
		g.disabled = append(g.disabled, p)
		p.SetState(process.Disabled)
		return DisableSuccess
	}

	g.enabled = removeProcess(g.enabled, p)
	g.disabling = append(g.disabling, p)
	p.SetState(process.Disabling)
	if callback != nil {
		g.disableCallbacks[p.Gupid] = append(g.disableCallbacks[p.Gupid], callback)
	}
	return DisableDeferred
}

// finishDisableIfIdle moves p from disabling to disabled once its last
// session closes, resolving any callbacks parked on it by Disable. Called
// from SessionClosed while still holding g.mu is unsafe (callbacks must run
// unlocked), so this returns the callbacks to invoke instead of calling
// them itself.
func (g *Group) finishDisableIfIdle(p *process.Process) []DisableCallback {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.Busy() || !containsProcess(g.disabling, p) {
		return nil
	}
	g.disabling = removeProcess(g.disabling, p)
	g.disabled = append(g.disabled, p)
	p.SetState(process.Disabled)

	callbacks := g.disableCallbacks[p.Gupid]
	delete(g.disableCallbacks, p.Gupid)
	return callbacks
}

func containsProcess(list []*process.Process, target *process.Process) bool {
	for _, p := range list {
		if p == target {
			return true
		}
	}
	return false
}
