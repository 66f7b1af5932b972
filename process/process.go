// Package process describes a single OS-level application worker and the
// state the pool and its groups need to track about it.
package process

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Process as seen by its owning Group.
type State int32

const (
	// Spawning means the process has been requested but the spawner has
	// not yet reported it as started.
	Spawning State = iota
	// Enabled means the process may be handed out in new sessions.
	Enabled
	// Disabling means the process is draining: no new sessions are
	// handed out, but sessions already bound to it may still finish.
	Disabling
	// Disabled means the process no longer accepts sessions and is
	// waiting to be shut down or detached.
	Disabled
	// Detached means the process has been forcibly removed from its
	// group and is no longer part of the pool's bookkeeping.
	Detached
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Enabled:
		return "enabled"
	case Disabling:
		return "disabling"
	case Disabled:
		return "disabled"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Process is a handle to one running application worker. The pool never
// creates or destroys a Process directly; it is created by a spawner.Spawner
// and owned by exactly one Group for its entire life.
type Process struct {
	// PID is the operating system process id. Stable for the life of the
	// process, but may be reused by the OS after the process exits.
	PID int

	// Gupid is a globally-unique, opaque identifier that stays valid even
	// after the process has exited and its PID has been recycled.
	Gupid string

	// GroupName is the name of the owning group. It is a name, not a
	// pointer, so that Process carries no import-time dependency on the
	// group package and so that nothing resembling the cyclic
	// pool<->group<->process graph of the original implementation has to
	// be reasoned about: Go's garbage collector reclaims cycles on its
	// own, so ownership here is just "which map is this entry under".
	GroupName string

	state atomic.Int32

	// sessionsInFlight counts sessions currently bound to this process.
	// A process with sessionsInFlight == 0 is idle: eligible for eviction
	// under capacity pressure at once, and for the idle sweep once its
	// IdleSince has aged past the pool's maxIdleTime.
	sessionsInFlight atomic.Int32

	mu       sync.Mutex
	idleSince time.Time
}

// New creates a Process in the Spawning state with a freshly minted gupid.
func New(pid int, groupName string) *Process {
	p := &Process{
		PID:       pid,
		Gupid:     uuid.NewString(),
		GroupName: groupName,
	}
	p.state.Store(int32(Spawning))
	p.mu.Lock()
	p.idleSince = time.Now()
	p.mu.Unlock()
	return p
}

// State returns the process's current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// SetState transitions the process to a new state. The store is atomic, so
// callers need not hold any lock; Process does not synchronize with
// anything outside of its own fields.
func (p *Process) SetState(s State) {
	p.state.Store(int32(s))
}

// Busy reports whether the process currently has at least one session bound
// to it.
func (p *Process) Busy() bool {
	return p.sessionsInFlight.Load() > 0
}

// BindSession marks one more session as in flight on this process.
func (p *Process) BindSession() {
	p.sessionsInFlight.Add(1)
}

// ReleaseSession marks a session as finished. When the last session on a
// process finishes, the process becomes idle starting now -- this timestamp
// is what the pool's eviction engine sorts on.
func (p *Process) ReleaseSession() {
	if p.sessionsInFlight.Add(-1) <= 0 {
		p.mu.Lock()
		p.idleSince = time.Now()
		p.mu.Unlock()
	}
}

// IdleSince returns the time at which this process last went idle. Undefined
// (but harmless to read) while the process is busy.
func (p *Process) IdleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleSince
}

// Alive reports whether the process is part of a live group's bookkeeping,
// i.e. has not been detached.
func (p *Process) Alive() bool {
	return p.State() != Detached
}
