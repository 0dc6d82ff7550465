package supervisor

import (
	"context"
	"fmt"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/sysmsg"
)

type initResult struct {
	err error
}

// Start validates cfg, spawns the supervisor and every child in order, and returns once they
// are all running. If any child fails to spawn, the ones already started are stopped and the
// supervisor does not come into existence.
func Start(cfg Config) (*Ref, error) {
	return start(nil, cfg)
}

// start links the supervisor to parent when one is given.
func start(parent *actor.PID, cfg Config) (*Ref, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor config: %w", err)
	}
	cfg = cfg.withDefaults()

	future := actor.NewFuture()
	var suPID *actor.PID
	if parent == nil {
		suPID = actor.Spawn(supervisor, cfg, future.Self())
	} else {
		suPID = actor.SpawnLink(parent, supervisor, cfg, future.Self())
	}

	result, err := future.Await(context.Background(), suPID)
	if err != nil {
		return nil, fmt.Errorf("supervisor %s: %w", cfg.Name, err)
	}
	if res, _ := result.(initResult); res.err != nil {
		return nil, res.err
	}

	actor.Register(cfg.Name, suPID)
	return &Ref{pid: suPID, name: cfg.Name}, nil
}

func supervisor(act *actor.Actor) error {
	// children are linked, their exits must arrive as messages
	act.TrapExit(true)
	act.MarkSupervisor()

	cfg := act.Args()[0].(Config)
	caller := act.Args()[1].(*actor.PID)

	s := newState(cfg, act)
	if err := s.init(); err != nil {
		actor.Send(caller, initResult{err: err})
		actor.Exit(sysmsg.Reason{Type: sysmsg.StartupFailed, Details: err})
	}
	s.logger.Info("supervisor started")
	actor.Send(caller, initResult{})

	act.Receive(s.handle)

	actor.Exit(s.exit)
	return nil
}
