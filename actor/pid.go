package actor

import (
	"github.com/hedisam/supervise/internal/pid"
	"github.com/hedisam/supervise/sysmsg"
)

// PID is the handle of a running (or terminated) actor. Two PIDs refer to the same actor
// iff their IDs are equal.
type PID struct {
	p *pid.PID
}

func newPID(p *pid.PID) *PID {
	return &PID{p: p}
}

func (p *PID) ID() string {
	return p.p.ID()
}

func (p *PID) String() string {
	return "<" + p.p.ID() + ">"
}

// Done is closed once the actor has terminated.
func (p *PID) Done() <-chan struct{} {
	return p.p.Done()
}

type Status struct {
	Running bool
	// Reason is the exit reason, set once Running is false
	Reason sysmsg.Reason
}

// StatusOf reports whether the actor is still running and why it stopped otherwise.
func StatusOf(p *PID) Status {
	running, reason := p.p.Status()
	return Status{Running: running, Reason: reason}
}

// PIDOf extracts the pid carried by system messages such as sysmsg.Exit.
func PIDOf(who interface{}) (*PID, bool) {
	p, ok := who.(*PID)
	return p, ok && p != nil
}
