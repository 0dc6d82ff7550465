package supervisor

import (
	"errors"

	"github.com/hedisam/supervise/actor"
)

var (
	ErrSupervisorStopped = errors.New("supervisor is not running")
	ErrChildNotFound     = errors.New("child does not exist")
	ErrChildRunning      = errors.New("child is running")
	ErrChildNotRunning   = errors.New("child is not running")
	ErrDuplicateChild    = errors.New("a child spec with the same id is already present")
)

type call struct {
	sender  *actor.PID
	request interface{}
}

// ok is the reply of calls that have no result
type ok struct{}

// ChildInfo is a snapshot of one child as reported by WhichChildren.
type ChildInfo struct {
	ID      string
	Restart RestartPolicy
	Running bool
	// PID is nil while the child is stopped
	PID *actor.PID
	// Restarts counted against the budget right now
	Restarts int
}

type ChildCount struct {
	// Specs is the number of children, running or not
	Specs int
	// Active is the number of running children
	Active int
}

type whichChildren struct{}

type countChildren struct{}

type terminateChild struct {
	id string
}

type restartChild struct {
	id string
}

type startChild struct {
	spec ChildSpec
}

type deleteChild struct {
	id string
}
