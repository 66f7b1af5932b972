package apppool

import (
	"log/slog"
	"time"

	"github.com/drewolson/apppool/spawner"
	"github.com/drewolson/apppool/sysmetrics"
)

// config collects the values the pool's functional options populate before
// NewPool builds the Pool itself.
type config struct {
	max                 int
	maxIdleTime         time.Duration
	maxConcurrentSpawns int64
	selfChecking        bool
	factory             spawner.Factory
	logger              *slog.Logger
	metrics             *sysmetrics.Collector
}

func defaultConfig() config {
	return config{
		max:                 6,
		maxIdleTime:         5 * time.Minute,
		maxConcurrentSpawns: 0,
		selfChecking:        true,
	}
}

// Option configures a Pool at construction time.
//
// Example:
//
//	pool, err := apppool.NewPool(
//	    apppool.WithMax(10),
//	    apppool.WithMaxIdleTime(2*time.Minute),
//	)
type Option func(*config)

// WithMax sets the pool's global process-slot ceiling. Defaults to 6.
func WithMax(n int) Option {
	return func(c *config) { c.max = n }
}

// WithMaxIdleTime sets how long an idle process may sit before the
// background idle sweep detaches it. Eviction under capacity pressure does
// not consult it: any idle process may be evicted then.
func WithMaxIdleTime(d time.Duration) Option {
	return func(c *config) { c.maxIdleTime = d }
}

// WithMaxConcurrentSpawns bounds how many spawn attempts the default
// os/exec-backed factory allows in flight across the whole pool at once. Has
// no effect if WithSpawnerFactory is also given. A value <= 0 means
// unbounded.
func WithMaxConcurrentSpawns(n int64) Option {
	return func(c *config) { c.maxConcurrentSpawns = n }
}

// WithSpawnerFactory overrides the default os/exec-backed spawner factory,
// letting tests inject spawner.NewFake() or embedders supply their own
// SpawningKit-equivalent.
func WithSpawnerFactory(f spawner.Factory) Option {
	return func(c *config) { c.factory = f }
}

// WithLogger sets the structured logger the pool and its groups log
// through. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithSystemMetrics enables polling host CPU/memory via collector, once at
// construction and then once a minute from a background loop, matching spec.md §6's "system metrics collector: optional,
// polled at construction; failure is non-fatal".
func WithSystemMetrics(collector *sysmetrics.Collector) Option {
	return func(c *config) { c.metrics = collector }
}

// WithSelfChecking toggles the invariant verifier. Enabled by default;
// disable only to shed overhead in production, per spec.md §4.7.
func WithSelfChecking(enabled bool) Option {
	return func(c *config) { c.selfChecking = enabled }
}
