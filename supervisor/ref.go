package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/sysmsg"
)

// Ref is the caller's handle to a running supervisor. Calls are served one at a time by the
// supervisor's event loop, between lifecycle events.
type Ref struct {
	pid  *actor.PID
	name string
}

func (r *Ref) PID() *actor.PID {
	return r.pid
}

func (r *Ref) Name() string {
	return r.name
}

// Shutdown stops every running child without restarting any, then the supervisor itself.
// A respawn waiting between attempts is aborted. It is safe to call more than once.
func (r *Ref) Shutdown(ctx context.Context) error {
	actor.Stop(r.pid, sysmsg.ShutdownReason(nil))
	return r.Wait(ctx)
}

// Wait blocks until the supervisor has stopped or ctx is done.
func (r *Ref) Wait(ctx context.Context) error {
	select {
	case <-r.pid.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Ref) Done() <-chan struct{} {
	return r.pid.Done()
}

// Status reports whether the supervisor is running, and the reason it stopped otherwise:
// shutdown, meltdown or spawn_retry_exhausted.
func (r *Ref) Status() actor.Status {
	return actor.StatusOf(r.pid)
}

func (r *Ref) WhichChildren() ([]ChildInfo, error) {
	result, err := r.call(whichChildren{})
	if err != nil {
		return nil, err
	}
	switch result := result.(type) {
	case []ChildInfo:
		return result, nil
	default:
		return nil, errInvalidResponse(result)
	}
}

func (r *Ref) CountChildren() (ChildCount, error) {
	result, err := r.call(countChildren{})
	if err != nil {
		return ChildCount{}, err
	}
	switch result := result.(type) {
	case ChildCount:
		return result, nil
	default:
		return ChildCount{}, errInvalidResponse(result)
	}
}

// TerminateChild stops a running child. It stays stopped whatever its restart policy.
func (r *Ref) TerminateChild(id string) error {
	return r.callOK(terminateChild{id: id})
}

// RestartChild respawns a stopped child using the retry strategy. Manual restarts don't count
// against the budget.
func (r *Ref) RestartChild(id string) error {
	return r.callOK(restartChild{id: id})
}

// StartChild adds spec to the supervisor and spawns it.
func (r *Ref) StartChild(spec ChildSpec) error {
	return r.callOK(startChild{spec: spec})
}

// DeleteChild removes a stopped child's spec.
func (r *Ref) DeleteChild(id string) error {
	return r.callOK(deleteChild{id: id})
}

func (r *Ref) callOK(request interface{}) error {
	result, err := r.call(request)
	if err != nil {
		return err
	}
	if _, isOK := result.(ok); !isOK {
		return errInvalidResponse(result)
	}
	return nil
}

func (r *Ref) call(request interface{}) (interface{}, error) {
	future := actor.NewFuture()
	actor.Send(r.pid, call{sender: future.Self(), request: request})
	result, err := future.Await(context.Background(), r.pid)
	if errors.Is(err, actor.ErrNoProc) {
		return nil, ErrSupervisorStopped
	} else if err != nil {
		return nil, err
	}
	if err, isErr := result.(error); isErr {
		return nil, err
	}
	return result, nil
}

func errInvalidResponse(resp interface{}) error {
	return fmt.Errorf("supervisor has sent invalid response: %v", resp)
}
