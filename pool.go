// Package apppool implements the top-level coordinator of an application
// process pool: it tracks per-application groups, enforces a global
// capacity limit, routes asynchronous get requests to groups, manages a
// pool-wide wait queue, and orchestrates detach/disable/restart/shutdown
// against a strict set of invariants under concurrent access.
//
// The per-group state machine, the spawner, and the session abstraction
// are external collaborators living in the group, spawner, and session
// packages; Pool only ever talks to groups through the small surface group.Group
// exposes.
package apppool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drewolson/apppool/group"
	"github.com/drewolson/apppool/process"
	"github.com/drewolson/apppool/session"
	"github.com/drewolson/apppool/spawner"
	"github.com/drewolson/apppool/sysmetrics"
)

// GetOptions is the pool's request type, re-exported from the group
// package since that is where it is canonically defined (group.Group also
// needs it, and group cannot import apppool without a cycle).
type GetOptions = group.Options

// Session is a bound lease of one worker process for one request.
type Session = session.Session

// Process is a handle to one running application worker.
type Process = process.Process

// GetCallback is invoked exactly once per AsyncGet call, with either a
// session or an error, never both.
type GetCallback = group.Callback

// lifeStatus is the pool's lifecycle state (spec.md §4.6).
type lifeStatus int32

const (
	lifeAlive lifeStatus = iota
	lifePreparedForShutdown
	lifeShuttingDown
	lifeShutDown
)

func (s lifeStatus) String() string {
	switch s {
	case lifeAlive:
		return "alive"
	case lifePreparedForShutdown:
		return "prepared_for_shutdown"
	case lifeShuttingDown:
		return "shutting_down"
	case lifeShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// poolWaiter is the pool-level analogue of group.Waiter: a persisted
// GetOptions value paired with the callback parked on it (spec.md §3,
// "GetWaiter").
type poolWaiter struct {
	options  GetOptions
	callback GetCallback
}

// Pool is the application pool's top-level coordinator. All mutating
// operations serialize through syncher; side effects that must not run
// under that lock (caller callbacks, OS signals) are buffered into an
// actions slice and executed by the outermost public method after
// releasing it. Spawns are started under the lock, but each group runs the
// spawn itself in its own goroutine.
type Pool struct {
	syncher sync.Mutex

	max          int
	maxIdleTime  time.Duration
	selfChecking bool
	lifeStatus   lifeStatus

	groups   map[string]*group.Group
	waitlist []poolWaiter

	factory spawner.Factory
	logger  *slog.Logger
	metrics *sysmetrics.Collector

	interruptCtx    context.Context
	interruptCancel context.CancelFunc
	interruptible   *errgroup.Group
	background      sync.WaitGroup

	abortLongRunningConnections func(*process.Process)
}

// NewPool constructs a Pool that accepts AsyncGet calls as soon as it
// returns; Initialize does no further setup. The default spawner factory launches real child
// processes via os/exec; pass WithSpawnerFactory(spawner.NewFake()) in
// tests.
func NewPool(opts ...Option) (*Pool, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	factory := cfg.factory
	if factory == nil {
		factory = spawner.NewExecFactory(cfg.maxConcurrentSpawns)
	}
	if err := factory.Finalize(); err != nil {
		return nil, err
	}

	if cfg.metrics != nil {
		snap := cfg.metrics.Collect(context.Background())
		logger.Info("system metrics at pool construction",
			"cpu_percent", snap.CPUPercent, "mem_used_percent", snap.MemoryUsedPct)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		max:             cfg.max,
		maxIdleTime:     cfg.maxIdleTime,
		selfChecking:    cfg.selfChecking,
		lifeStatus:      lifeAlive,
		groups:          make(map[string]*group.Group),
		factory:         factory,
		logger:          logger,
		metrics:         cfg.metrics,
		interruptCtx:    ctx,
		interruptCancel: cancel,
		interruptible:   &errgroup.Group{},
	}
	p.startBackgroundLoops()
	return p, nil
}

// CapacityFreed implements group.PoolNotifier. Every group holds a
// reference to the pool through this interface rather than a concrete
// *Pool, so that group need not import apppool.
func (p *Pool) CapacityFreed() {
	p.syncher.Lock()
	var actions []func()
	p.assignSessionsToGetWaitersLocked(&actions)
	p.possiblySpawnMoreForExistingGroupsLocked(&actions)
	p.syncher.Unlock()
	runActions(actions)
}

func runActions(actions []func()) {
	for _, action := range actions {
		action()
	}
}
