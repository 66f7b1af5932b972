// Package spawner owns the part of the system the pool never does itself:
// turning a group's options into a running OS process. It is the Go
// equivalent of the original's SpawningKit -- deliberately kept out of the
// pool's coarse lock, since starting a process can block for a long time.
package spawner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/gravitational/trace"
	"golang.org/x/sync/semaphore"

	"github.com/drewolson/apppool/process"
)

// Options carries the per-group settings a Spawner needs to start a new
// process. Fields beyond StartCommand are passed through from the group's
// own Options without interpretation by the pool, matching spec.md §6.
type Options struct {
	// AppGroupName is the group this process will belong to.
	AppGroupName string
	// AppRoot is the working directory the process should start in.
	AppRoot string
	// StartCommand is the executable (and arguments) used to launch the
	// worker process. Required.
	StartCommand []string
	// Env is appended to the spawned process's environment.
	Env []string
}

// Spawner starts processes for a single application group.
type Spawner interface {
	// Spawn starts one new process and blocks until it is either ready
	// to serve requests or has failed to start. Cancelling ctx aborts an
	// in-progress spawn attempt.
	Spawn(ctx context.Context, opts Options) (*process.Process, error)
}

// Factory produces one Spawner per application group and is injected into
// the pool at construction time. Finalize must be called once, before the
// factory is handed its first SpawnerFor call, the same ordering the
// original SpawningKit::Factory requires ("injected at construction and
// finalized before use", spec.md §6).
type Factory interface {
	SpawnerFor(groupName string) Spawner
	Finalize() error
}

// execFactory is the default Factory: it spawns real OS processes via
// os/exec and throttles the total number of concurrent spawn attempts
// pool-wide with a weighted semaphore, so that a burst of groups all
// needing a first process at once cannot overwhelm the host.
type execFactory struct {
	sem       *semaphore.Weighted
	finalized atomic.Bool
}

// NewExecFactory returns a Factory whose spawners launch real child
// processes via os/exec. maxConcurrentSpawns bounds how many spawn attempts
// may be in flight across the whole pool at once; a value <= 0 means
// unbounded.
func NewExecFactory(maxConcurrentSpawns int64) Factory {
	if maxConcurrentSpawns <= 0 {
		maxConcurrentSpawns = 1 << 20
	}
	return &execFactory{sem: semaphore.NewWeighted(maxConcurrentSpawns)}
}

func (f *execFactory) SpawnerFor(groupName string) Spawner {
	return &execSpawner{groupName: groupName, sem: f.sem}
}

func (f *execFactory) Finalize() error {
	if !f.finalized.CompareAndSwap(false, true) {
		return trace.AlreadyExists("spawner factory already finalized")
	}
	return nil
}

type execSpawner struct {
	groupName string
	sem       *semaphore.Weighted
}

func (s *execSpawner) Spawn(ctx context.Context, opts Options) (*process.Process, error) {
	if len(opts.StartCommand) == 0 {
		return nil, trace.BadParameter("spawner: group %q has no start command", s.groupName)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, trace.Wrap(err, "waiting for a free spawn slot")
	}
	defer s.sem.Release(1)

	cmd := exec.CommandContext(ctx, opts.StartCommand[0], opts.StartCommand[1:]...)
	cmd.Dir = opts.AppRoot
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, trace.Wrap(err, "opening stdin pipe for group %q", s.groupName)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, trace.Wrap(err, "starting worker process for group %q", s.groupName)
	}
	// The original hands a live connection to the process over its stdin
	// channel as part of the preloader protocol; we keep the pipe open
	// for the lifetime of the process for the same reason. Nothing here
	// closes it: cmd.Wait below closes it once the child exits.
	_ = stdin

	go func() {
		// Reap the child so it never lingers as a zombie. The exit is not
		// reported to the pool or the group.
		_ = cmd.Wait()
	}()

	return process.New(cmd.Process.Pid, s.groupName), nil
}
