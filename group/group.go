// Package group implements the per-application-group state machine the
// pool delegates to: the enabled/disabling/disabled process lists, the
// group's own FIFO wait queue, and the spawn/restart loops that populate
// those lists. A Group is the pool's only collaborator that actually talks
// to the spawner; the pool itself never touches a process's lifecycle
// directly (spec.md §1, "Out of scope").
package group

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/drewolson/apppool/process"
	"github.com/drewolson/apppool/session"
	"github.com/drewolson/apppool/spawner"
)

// Callback is invoked exactly once for a Get call, with either a session or
// an error, never both.
type Callback func(*session.Session, error)

// DisableCallback is invoked when a deferred Disable finally resolves.
type DisableCallback func(*process.Process, DisableResult)

// Waiter pairs a persisted Options value with the callback waiting on it.
// It is the group-local analogue of the pool's GetWaiter.
type Waiter struct {
	Options  Options
	Callback Callback
}

// PoolNotifier lets a Group tell its owning pool "capacity may have
// changed" without importing the apppool package (which imports group),
// which would make a cycle. The pool passes itself in at group creation.
type PoolNotifier interface {
	// CapacityFreed is called whenever a group event (spawn completed,
	// spawn failed, restart finished, session closed) may let the
	// pool's own wait queue or opportunistic-spawn pass make progress.
	CapacityFreed()
}

// Group is the external collaborator named throughout spec.md §4: it owns
// one application's processes and is the only thing that mutates them.
type Group struct {
	mu sync.Mutex

	name     string
	secret   string
	options  Options
	poolMax  int // pool's global max, refreshed by the pool before calls that need it
	notifier PoolNotifier
	factory  spawner.Factory
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	enabled    []*process.Process
	disabling  []*process.Process
	disabled   []*process.Process
	waitlist   []Waiter
	spawning   bool
	restarting bool

	disableCallbacks map[string][]DisableCallback // gupid -> pending callbacks
}

// New creates a Group named opts.AppGroupName. poolMax is the pool's
// current global capacity limit, used only to size spawn decisions when the
// group itself sets no MaxProcesses.
func New(opts Options, poolMax int, factory spawner.Factory, notifier PoolNotifier, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		name:             opts.AppGroupName,
		secret:           newSecret(),
		options:          opts,
		poolMax:          poolMax,
		notifier:         notifier,
		factory:          factory,
		logger:           logger.With("group", opts.AppGroupName),
		ctx:              ctx,
		cancel:           cancel,
		disableCallbacks: make(map[string][]DisableCallback),
	}
}

func newSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a platform-level emergency; the original
		// has no graceful path for it either (it would fail a similarly
		// fundamental OS call). Fall back to a fixed, clearly-invalid
		// marker so callers notice rather than silently operate unkeyed.
		return "unreadable-entropy-source"
	}
	return hex.EncodeToString(buf)
}

// Name returns the group's application-group name.
func (g *Group) Name() string {
	return g.name
}

// Secret returns the group's stable, opaque comparison token.
func (g *Group) Secret() string {
	return g.secret
}

// MatchesSecret performs a constant-time comparison against secret.
func (g *Group) MatchesSecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(g.secret), []byte(secret)) == 1
}

// SetPoolMax refreshes the pool's global capacity, consulted by ShouldSpawn
// when the group has no MaxProcesses of its own.
func (g *Group) SetPoolMax(max int) {
	g.mu.Lock()
	g.poolMax = max
	g.mu.Unlock()
}

// Options returns a copy of the group's current options.
func (g *Group) Options() Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.options
}

// SetMinProcesses changes how many processes this group tries to keep
// alive with no pending requests. Used by PrepareForShutdown to stop
// groups respawning while the pool drains (spec.md §4.6).
func (g *Group) SetMinProcesses(n int) {
	g.mu.Lock()
	g.options.MinProcesses = n
	g.mu.Unlock()
}

// CapacityUsed is the number of process slots this group counts toward the
// pool's global max: every enabled or disabling process, matching spec.md
// §3 invariant 3 read bottom-up.
func (g *Group) CapacityUsed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacityUsedLocked()
}

func (g *Group) capacityUsedLocked() int {
	return len(g.enabled) + len(g.disabling)
}

// WaitingForCapacity reports whether the group has requests it cannot
// currently satisfy from its existing processes. The pool's priority spawn
// pass (§4.3) asks these groups to spawn before proactively growing
// everyone else.
func (g *Group) WaitingForCapacity() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waitlist) > 0
}

// ShouldSpawn reports whether the group has room to grow toward its own
// configured minimum, independent of whether anyone is currently waiting.
func (g *Group) ShouldSpawn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shouldSpawnLocked()
}

func (g *Group) shouldSpawnLocked() bool {
	used := g.capacityUsedLocked()
	max := g.options.effectiveMax(g.poolMax)
	if max > 0 && used >= max {
		return false
	}
	return used < g.options.MinProcesses
}

// Spawning reports whether a spawn attempt is currently in flight.
func (g *Group) Spawning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spawning
}

// Restarting reports whether a restart is currently in flight.
func (g *Group) Restarting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.restarting
}

// EnabledProcesses, DisablingProcesses and DisabledProcesses return
// snapshots of the group's process lists, used by the pool's inspection
// methods (GetProcesses, FindProcessByPid, FindProcessByGupid).
func (g *Group) EnabledProcesses() []*process.Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*process.Process(nil), g.enabled...)
}

func (g *Group) DisablingProcesses() []*process.Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*process.Process(nil), g.disabling...)
}

func (g *Group) DisabledProcesses() []*process.Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*process.Process(nil), g.disabled...)
}

// ProcessCount is the number of processes this group tracks, including
// disabling and disabled ones but excluding none -- the pool's
// GetProcessCount adds this up across every group (spec.md §6).
func (g *Group) ProcessCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.enabled) + len(g.disabling) + len(g.disabled)
}

// oldestIdleEnabled returns the enabled, non-busy process that has been
// idle the longest, or nil if every enabled process is busy. Ties are
// broken by ascending PID (spec.md §9 Open Questions; SPEC_FULL.md §4.10).
func (g *Group) oldestIdleEnabled() *process.Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return oldestIdle(g.enabled)
}

func oldestIdle(procs []*process.Process) *process.Process {
	var best *process.Process
	for _, p := range procs {
		if p.Busy() {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		if p.IdleSince().Before(best.IdleSince()) ||
			(p.IdleSince().Equal(best.IdleSince()) && p.PID < best.PID) {
			best = p
		}
	}
	return best
}

// Get is the group's half of the pool's asyncGet (spec.md §4.1). Precondition:
// the caller already matched opts.AppGroupName to this group. It either
// returns a session immediately (the noop fast path, or a pre-existing idle
// process) or appends (opts, callback) to the group's own wait list and asks
// itself to spawn if appropriate, returning nil.
func (g *Group) Get(opts Options, callback Callback, actions *[]func()) *session.Session {
	if opts.Noop {
		return session.New(nil, g)
	}

	g.mu.Lock()

	if p := oldestIdle(g.enabled); p != nil {
		g.mu.Unlock()
		return session.New(p, g)
	}

	g.waitlist = append(g.waitlist, Waiter{Options: opts.CopyAndPersist(), Callback: callback})
	needsSpawn := g.shouldSpawnOnDemandLocked()
	g.mu.Unlock()

	if needsSpawn {
		g.Spawn()
	}
	return nil
}

// shouldSpawnOnDemandLocked decides whether a freshly-queued waiter should
// trigger an immediate spawn attempt, as opposed to waiting for the pool's
// opportunistic spawn passes to notice. Mirrors the "waitingForCapacity"
// urgency in SPEC_FULL.md §4.9.
func (g *Group) shouldSpawnOnDemandLocked() bool {
	if g.spawning {
		return false
	}
	used := g.capacityUsedLocked()
	max := g.options.effectiveMax(g.poolMax)
	return max <= 0 || used < max
}

// SessionClosed implements session.CloseNotifier. It is called whenever a
// session bound to one of this group's processes finishes; the freed
// process is offered to the group's own oldest waiter before the group
// tells the pool that capacity may have changed.
func (g *Group) SessionClosed(p *process.Process) {
	if p == nil {
		return
	}

	var deferredCallback func()

	g.mu.Lock()
	if len(g.waitlist) > 0 && !p.Busy() && p.State() == process.Enabled {
		w := g.waitlist[0]
		g.waitlist = g.waitlist[1:]
		sess := session.New(p, g)
		cb := w.Callback
		deferredCallback = func() { cb(sess, nil) }
	}
	g.mu.Unlock()

	if deferredCallback != nil {
		deferredCallback()
	}

	for _, cb := range g.finishDisableIfIdle(p) {
		cb(p, DisableSuccess)
	}

	g.notifier.CapacityFreed()
}

// drainWaitlistWithError fails every pending waiter with err. Used when the
// group is detached out from under its waiters (spec.md §7, error kind 3)
// and when a spawn attempt fails outright.
func (g *Group) drainWaitlistWithError(err error, actions *[]func()) {
	g.mu.Lock()
	pending := g.waitlist
	g.waitlist = nil
	g.mu.Unlock()

	for _, w := range pending {
		cb := w.Callback
		*actions = append(*actions, func() { cb(nil, err) })
	}
}

// DrainWaitlistWithError is the exported form used by the pool when
// detaching this group: every waiter receives ErrGetAborted.
func (g *Group) DrainWaitlistWithError(err error, actions *[]func()) {
	g.drainWaitlistWithError(err, actions)
}

// Detach removes p from whichever list it is currently on and appends a
// post-lock action that sends it SIGTERM. Precondition (spec.md §4.4): the group's own wait
// list is empty, since detaching a process out from under waiters would
// strand them unfairly -- that precondition is the eviction engine's
// responsibility to uphold, not this method's.
func (g *Group) Detach(p *process.Process, actions *[]func()) {
	g.mu.Lock()
	g.enabled = removeProcess(g.enabled, p)
	g.disabling = removeProcess(g.disabling, p)
	g.disabled = removeProcess(g.disabled, p)
	delete(g.disableCallbacks, p.Gupid)
	g.mu.Unlock()

	p.SetState(process.Detached)
	*actions = append(*actions, func() { killProcess(p.PID) })
}

func removeProcess(list []*process.Process, target *process.Process) []*process.Process {
	for i, p := range list {
		if p == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Shutdown asynchronously stops every process the group still owns and
// calls done once they have all been asked to stop. postLockActions
// receives the deferred OS-level kill calls, matching spec.md §4.5's
// forceDetachGroup -> group->shutdown(callback, postLockActions).
func (g *Group) Shutdown(done func(), actions *[]func()) {
	g.cancel()

	g.mu.Lock()
	all := append(append(append([]*process.Process(nil), g.enabled...), g.disabling...), g.disabled...)
	g.enabled, g.disabling, g.disabled = nil, nil, nil
	g.mu.Unlock()

	for _, p := range all {
		p.SetState(process.Detached)
		pid := p.PID
		*actions = append(*actions, func() { killProcess(pid) })
	}
	if done != nil {
		*actions = append(*actions, done)
	}
}
