package apppool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/spawner"
)

// ============================================================================
// Fixtures
// ============================================================================

func newTestPool(t *testing.T, max int) (*Pool, *spawner.Fake) {
	t.Helper()
	fake := spawner.NewFake()
	pool, err := NewPool(WithMax(max), WithSpawnerFactory(fake), WithSelfChecking(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Destroy()
		pool.Close()
	})
	return pool, fake
}

func getOpts(name string) GetOptions {
	return GetOptions{AppGroupName: name, MinProcesses: 0, StartCommand: []string{"fake"}}
}

func waitForPool(t *testing.T, cond func() bool) {
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
// Scenario 1: baseline hit (spec.md §8)
// ============================================================================

func TestBaselineHit(t *testing.T) {
	pool, _ := newTestPool(t, 2)

	sess, err := pool.Get(getOpts("A"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, 1, pool.CapacityUsed())
}

// ============================================================================
// Scenario 2: queue-and-drain (spec.md §8)
// ============================================================================

func TestQueueAndDrain(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	sessA, err := pool.Get(getOpts("A"))
	require.NoError(t, err)
	require.Equal(t, 1, pool.CapacityUsed())

	var sessB *Session
	var errB error
	done := make(chan struct{})
	pool.AsyncGet(getOpts("B"), func(s *Session, err error) {
		sessB, errB = s, err
		close(done)
	})

	waitForPool(t, func() bool {
		pool.syncher.Lock()
		n := len(pool.waitlist)
		pool.syncher.Unlock()
		return n == 1
	})

	pool.DetachProcess(sessA.Process())

	<-done
	require.NoError(t, errB)
	require.NotNil(t, sessB)
	require.NotNil(t, pool.GetGroup("B"))
}

// ============================================================================
// Scenario 3: eviction path (spec.md §8)
// ============================================================================

func TestEvictionPath(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	sessA, err := pool.Get(getOpts("A"))
	require.NoError(t, err)
	sessA.Close() // idle, eligible for eviction

	waitForPool(t, func() bool { return pool.CapacityUsed() == 1 })

	sessB, err := pool.Get(getOpts("B"))
	require.NoError(t, err)
	require.NotNil(t, sessB)

	require.Equal(t, 0, pool.GetGroup("A").CapacityUsed())
	require.NotNil(t, pool.GetGroup("B"))
}

// ============================================================================
// Scenario 4: detach-with-waiters (spec.md §8)
// ============================================================================

func TestDetachWithWaiters(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	optsA := getOpts("A")
	optsA.MaxProcesses = 1 // keeps the two extra requests parked on A's own waitlist instead of spawning

	_, err := pool.Get(optsA)
	require.NoError(t, err)

	var err1, err2 error
	done1, done2 := make(chan struct{}), make(chan struct{})
	pool.AsyncGet(optsA, func(s *Session, e error) { err1 = e; close(done1) })
	pool.AsyncGet(optsA, func(s *Session, e error) { err2 = e; close(done2) })

	waitForPool(t, func() bool {
		g := pool.GetGroup("A")
		return g != nil && g.WaitingForCapacity()
	})

	ok := pool.DetachGroupByName("A")
	require.True(t, ok)

	<-done1
	<-done2
	require.ErrorIs(t, err1, group.ErrGetAborted)
	require.ErrorIs(t, err2, group.ErrGetAborted)
	require.Nil(t, pool.GetGroup("A"))
}

// ============================================================================
// Scenario 5: set_max raise drains queue in FIFO order (spec.md §8)
// ============================================================================

func TestSetMaxRaise(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	_, err := pool.Get(getOpts("existing"))
	require.NoError(t, err)

	var errA, errB error
	doneA, doneB := make(chan struct{}), make(chan struct{})
	pool.AsyncGet(getOpts("A"), func(s *Session, e error) { errA = e; close(doneA) })
	pool.AsyncGet(getOpts("B"), func(s *Session, e error) { errB = e; close(doneB) })

	waitForPool(t, func() bool {
		pool.syncher.Lock()
		n := len(pool.waitlist)
		pool.syncher.Unlock()
		return n == 2
	})

	pool.SetMax(3)

	<-doneA
	<-doneB
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.NotNil(t, pool.GetGroup("A"))
	require.NotNil(t, pool.GetGroup("B"))
}

// ============================================================================
// Scenario 6: lifecycle misuse (spec.md §8)
// ============================================================================

func TestLifecycleMisuse(t *testing.T) {
	fake := spawner.NewFake()
	pool, err := NewPool(WithMax(1), WithSpawnerFactory(fake))
	require.NoError(t, err)

	require.Panics(t, func() { pool.Close() })

	pool.Destroy()
	require.NotPanics(t, func() { pool.Close() })
}
