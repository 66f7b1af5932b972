package group

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drewolson/apppool/process"
	"github.com/drewolson/apppool/session"
	"github.com/drewolson/apppool/spawner"
)

// ============================================================================
// Test fixtures
// ============================================================================

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) CapacityFreed() {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func newTestGroup(t *testing.T, opts Options) (*Group, *spawner.Fake, *fakeNotifier) {
	t.Helper()
	if opts.StartCommand == nil {
		opts.StartCommand = []string{"fake"}
	}
	fake := spawner.NewFake()
	notifier := &fakeNotifier{}
	g := New(opts, 6, fake, notifier, slog.Default())
	return g, fake, notifier
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// ============================================================================
// Get / spawn loop
// ============================================================================

func TestGet_QueuesAndSpawnsWhenEmpty(t *testing.T) {
	g, _, notifier := newTestGroup(t, Options{AppGroupName: "A", MinProcesses: 1})

	var got *session.Session
	var gotErr error
	done := make(chan struct{})
	sess := g.Get(Options{AppGroupName: "A"}, func(s *session.Session, err error) {
		got, gotErr = s, err
		close(done)
	}, new([]func()))

	require.Nil(t, sess, "Get should queue rather than return synchronously on an empty group")

	<-done
	require.NoError(t, gotErr)
	require.NotNil(t, got)
	require.NotNil(t, got.Process())
	require.True(t, got.Process().Busy())

	waitFor(t, func() bool { return notifier.count() > 0 })
}

func TestGet_NoopReturnsPlaceholderSession(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})

	sess := g.Get(Options{AppGroupName: "A", Noop: true}, nil, new([]func()))
	require.NotNil(t, sess)
	require.Nil(t, sess.Process())
	sess.Close() // must not panic
}

func TestSpawn_NoStartCommandDrainsWaitlistWithError(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	g.options.StartCommand = nil

	var gotErr error
	done := make(chan struct{})
	g.Get(Options{AppGroupName: "A"}, func(s *session.Session, err error) {
		gotErr = err
		close(done)
	}, new([]func()))

	<-done
	require.ErrorIs(t, gotErr, ErrNoStartCommand)
}

func TestSpawn_FailureDrainsWaitlist(t *testing.T) {
	g, fake, _ := newTestGroup(t, Options{AppGroupName: "A"})
	fake.FailNext.Store(true)

	var gotErr error
	done := make(chan struct{})
	g.Get(Options{AppGroupName: "A"}, func(s *session.Session, err error) {
		gotErr = err
		close(done)
	}, new([]func()))

	<-done
	require.Error(t, gotErr)
}

// ============================================================================
// SessionClosed / oldest-idle selection
// ============================================================================

func TestSessionClosed_HandsProcessToOldestWaiter(t *testing.T) {
	// MaxProcesses 1 keeps Get from starting an on-demand spawn that could
	// satisfy the waiter before the session closes.
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A", MaxProcesses: 1})

	p := process.New(1, "A")
	p.SetState(process.Enabled)
	g.enabled = append(g.enabled, p)
	sess := session.New(p, g)

	var got *session.Session
	done := make(chan struct{})
	result := g.Get(Options{AppGroupName: "A"}, func(s *session.Session, err error) {
		got = s
		close(done)
	}, new([]func()))
	require.Nil(t, result)

	sess.Close()
	<-done
	require.Same(t, p, got.Process())
}

func TestOldestIdle_TieBreaksByPID(t *testing.T) {
	// Built as literals rather than through New, both processes keep the
	// zero IdleSince, so their idle times tie exactly and only the PID can
	// decide.
	low := &process.Process{PID: 5, GroupName: "A"}
	high := &process.Process{PID: 9, GroupName: "A"}
	require.True(t, low.IdleSince().Equal(high.IdleSince()))

	best := oldestIdle([]*process.Process{high, low})
	require.Same(t, low, best, "ties must break toward the lower PID")
}

// ============================================================================
// Disable
// ============================================================================

func TestDisable_IdleProcessSucceedsImmediately(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	p := process.New(1, "A")
	p.SetState(process.Enabled)
	g.enabled = append(g.enabled, p)

	result := g.Disable(p, nil)
	require.Equal(t, DisableSuccess, result)
	require.Equal(t, process.Disabled, p.State())
	require.Contains(t, g.disabled, p)
}

func TestDisable_BusyProcessDefersUntilSessionCloses(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	p := process.New(1, "A")
	p.SetState(process.Enabled)
	g.enabled = append(g.enabled, p)
	sess := session.New(p, g)

	var resolved DisableResult
	result := g.Disable(p, func(proc *process.Process, r DisableResult) {
		resolved = r
	})
	require.Equal(t, DisableDeferred, result)
	require.Equal(t, process.Disabling, p.State())

	sess.Close()
	require.Equal(t, DisableSuccess, resolved)
	require.Equal(t, process.Disabled, p.State())
	require.Contains(t, g.disabled, p)
}

func TestDisable_UnknownProcessIsNoop(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	p := process.New(1, "A")

	require.Equal(t, DisableNoop, g.Disable(p, nil))
}

// ============================================================================
// Detach / Shutdown
// ============================================================================

func TestDetach_RemovesProcessFromEveryList(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	p := process.New(1, "A")
	p.SetState(process.Enabled)
	g.enabled = append(g.enabled, p)

	var actions []func()
	g.Detach(p, &actions)

	require.Equal(t, process.Detached, p.State())
	require.NotContains(t, g.enabled, p)
	require.NotEmpty(t, actions)
}

func TestShutdown_DetachesEveryTrackedProcess(t *testing.T) {
	g, _, _ := newTestGroup(t, Options{AppGroupName: "A"})
	p1 := process.New(1, "A")
	p2 := process.New(2, "A")
	p1.SetState(process.Enabled)
	p2.SetState(process.Disabled)
	g.enabled = append(g.enabled, p1)
	g.disabled = append(g.disabled, p2)

	var actions []func()
	doneCalled := false
	g.Shutdown(func() { doneCalled = true }, &actions)

	require.Equal(t, process.Detached, p1.State())
	require.Equal(t, process.Detached, p2.State())
	require.Empty(t, g.enabled)
	require.Empty(t, g.disabled)

	for _, action := range actions {
		action()
	}
	require.True(t, doneCalled)

	select {
	case <-g.ctx.Done():
	default:
		t.Fatal("Shutdown must cancel the group's context")
	}
}
