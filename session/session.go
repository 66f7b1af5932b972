// Package session provides the lease abstraction that binds one request to
// one worker process for the duration of that request.
package session

import (
	"sync"

	"github.com/drewolson/apppool/process"
)

// CloseNotifier is implemented by whatever owns a Session's Process (a
// group.Group in practice) so that Close can report completion without
// session importing group, which would create an import cycle.
type CloseNotifier interface {
	// SessionClosed is called exactly once, when the session it was handed
	// out for finishes. doneProcess is the process the session was bound
	// to; it is now eligible to be handed to a new session or evicted.
	SessionClosed(doneProcess *process.Process)
}

// Session is a bound lease of one Process for one request. It is opaque to
// the pool: the pool only ever creates one via a Group and hands it back to
// the caller through a GetCallback.
type Session struct {
	process  *process.Process
	notifier CloseNotifier

	mu     sync.Mutex
	closed bool
}

// New binds a new Session to process, incrementing its in-flight count. p
// may be nil: FindOrCreateGroup's noop Get returns a Session with no
// underlying process, and Close on such a Session is then a pure no-op.
func New(p *process.Process, notifier CloseNotifier) *Session {
	if p != nil {
		p.BindSession()
	}
	return &Session{process: p, notifier: notifier}
}

// Process returns the worker process this session is bound to.
func (s *Session) Process() *process.Process {
	return s.process
}

// Close ends the session, releasing the process back to its group. Close is
// idempotent: calling it more than once has no additional effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.process == nil {
		return
	}
	s.process.ReleaseSession()
	if s.notifier != nil {
		s.notifier.SessionClosed(s.process)
	}
}
