package spawner

import (
	"context"
	"sync/atomic"

	"github.com/gravitational/trace"

	"github.com/drewolson/apppool/process"
)

// Fake is an in-memory Spawner for tests and for embedding apppool in a
// process that does not want to fork real children. It never touches the
// OS: each Spawn call mints a synthetic, monotonically increasing PID.
type Fake struct {
	nextPID atomic.Int64
	// FailNext, if set to true by a test, causes the next Spawn call to
	// fail and resets itself back to false.
	FailNext atomic.Bool
	// Delay, if set, is run before producing a result, letting tests
	// exercise the "spawning" window.
	Delay func(ctx context.Context) error
}

// NewFake returns a ready-to-use Fake factory.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) SpawnerFor(groupName string) Spawner {
	return &fakeSpawner{factory: f, groupName: groupName}
}

func (f *Fake) Finalize() error { return nil }

type fakeSpawner struct {
	factory   *Fake
	groupName string
}

func (s *fakeSpawner) Spawn(ctx context.Context, opts Options) (*process.Process, error) {
	if s.factory.Delay != nil {
		if err := s.factory.Delay(ctx); err != nil {
			return nil, trace.Wrap(err)
		}
	}
	if s.factory.FailNext.CompareAndSwap(true, false) {
		return nil, trace.BadParameter("fake spawner: induced failure for group %q", s.groupName)
	}
	pid := int(s.factory.nextPID.Add(1))
	return process.New(pid, s.groupName), nil
}
