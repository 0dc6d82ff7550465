package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/sysmsg"
)

// RestartPolicy decides whether an exited child gets restarted.
type RestartPolicy int32

const (
	// Permanent children are always restarted.
	Permanent RestartPolicy = iota
	// Transient children are restarted only after an abnormal exit.
	Transient
	// Temporary children are never restarted.
	Temporary
)

// DefaultShutdown is how long the supervisor waits for a child to stop when NewChildSpec is used.
const DefaultShutdown = 5 * time.Second

func (p RestartPolicy) String() string {
	switch p {
	case Permanent:
		return "permanent"
	case Transient:
		return "transient"
	case Temporary:
		return "temporary"
	default:
		return fmt.Sprintf("RestartPolicy(%d)", int32(p))
	}
}

func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permanent":
		return Permanent, nil
	case "transient":
		return Transient, nil
	case "temporary":
		return Temporary, nil
	default:
		return 0, fmt.Errorf("invalid restart policy %q", s)
	}
}

func (p RestartPolicy) valid() bool {
	return p >= Permanent && p <= Temporary
}

func shouldRestart(policy RestartPolicy, abnormal bool) bool {
	switch policy {
	case Permanent:
		return true
	case Transient:
		return abnormal
	default:
		return false
	}
}

// Spawner starts a child linked to the supervisor sup. It is called once at startup and again
// on every restart.
type Spawner interface {
	Spawn(ctx context.Context, sup *actor.PID) (*actor.PID, error)
}

type SpawnFunc func(ctx context.Context, sup *actor.PID) (*actor.PID, error)

func (f SpawnFunc) Spawn(ctx context.Context, sup *actor.PID) (*actor.PID, error) {
	return f(ctx, sup)
}

// Worker spawns fn as an actor linked to the supervisor.
func Worker(fn actor.Func, args ...interface{}) Spawner {
	return SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		return actor.SpawnLink(sup, fn, args...), nil
	})
}

// Nested runs a whole supervisor as a child. Its meltdown is an abnormal exit for the parent.
func Nested(cfg Config) Spawner {
	return SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		ref, err := start(sup, cfg)
		if err != nil {
			return nil, err
		}
		return ref.PID(), nil
	})
}

type ChildSpec struct {
	ID      string
	Restart RestartPolicy
	Spawner Spawner
	// Shutdown is how long to wait for the child to exit once told to stop. Zero means don't wait.
	Shutdown time.Duration
}

// NewChildSpec returns a Permanent child spec waiting DefaultShutdown on stop.
func NewChildSpec(id string, spawner Spawner) ChildSpec {
	return ChildSpec{
		ID:       id,
		Restart:  Permanent,
		Spawner:  spawner,
		Shutdown: DefaultShutdown,
	}
}

func (spec ChildSpec) SetRestart(restart RestartPolicy) ChildSpec {
	spec.Restart = restart
	return spec
}

func (spec ChildSpec) SetShutdown(shutdown time.Duration) ChildSpec {
	spec.Shutdown = shutdown
	return spec
}

func (spec ChildSpec) validate() error {
	if spec.ID == "" {
		return errors.New("childspec's id could not be empty")
	} else if spec.Spawner == nil {
		return fmt.Errorf("childspec's spawner could not be nil, id %s", spec.ID)
	} else if !spec.Restart.valid() {
		return fmt.Errorf("invalid childspec's restart value: %v, id %s", spec.Restart, spec.ID)
	} else if spec.Shutdown < 0 {
		return fmt.Errorf("invalid childspec's shutdown value: %v, id %s", spec.Shutdown, spec.ID)
	}
	return nil
}

// spawnOnce runs the spawner, turning a panic or a nil pid into an error.
// A pid returned along with an error is stopped, since it will never be tracked.
func spawnOnce(ctx context.Context, spawner Spawner, sup *actor.PID) (child *actor.PID, err error) {
	defer func() {
		if r := recover(); r != nil {
			child, err = nil, fmt.Errorf("spawner panicked: %v", r)
		}
	}()
	child, err = spawner.Spawn(ctx, sup)
	if err != nil {
		if child != nil {
			actor.Stop(child, sysmsg.ShutdownReason(err))
		}
		return nil, err
	}
	if child == nil {
		return nil, errors.New("spawner returned no pid")
	}
	return child, nil
}
