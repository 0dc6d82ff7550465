package actor

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hedisam/supervise/internal/pid"
	"github.com/hedisam/supervise/sysmsg"
)

const (
	trapExitNo int32 = iota
	trapExitYes
)

// Func is the body of an actor. Returning nil is a normal exit, returning an error or
// panicking is an abnormal one.
type Func func(actor *Actor) error

type Actor struct {
	*Context
	trapExit int32
	self     *PID
}

// exitSignal unwinds an actor's goroutine with a chosen exit reason.
type exitSignal struct {
	reason sysmsg.Reason
	// cause is the linked actor whose exit brought this one down
	cause interface{}
}

func newActor(p *pid.PID, args []interface{}) *Actor {
	a := &Actor{
		Context:  newContext(p, args),
		trapExit: trapExitNo,
		self:     newPID(p),
	}
	p.Mailbox().SetSystemHandler(&systemHandler{actor: a})
	return a
}

func (a *Actor) Self() *PID {
	return a.self
}

// TrapExit makes linked exits and stop commands arrive as messages instead of terminating the actor.
func (a *Actor) TrapExit(trapExit bool) {
	var trap = trapExitNo
	if trapExit {
		trap = trapExitYes
	}
	atomic.StoreInt32(&a.trapExit, trap)
}

func (a *Actor) trapExited() bool {
	return atomic.LoadInt32(&a.trapExit) == trapExitYes
}

// MarkSupervisor declares the actor a supervisor: if it ever crashes, it takes every linked
// actor down with it except its own parent.
func (a *Actor) MarkSupervisor() {
	a.pid.SetKind(pid.KindSupervisor)
}

func (a *Actor) Link(other *PID) {
	link(a.self, other)
}

func (a *Actor) Unlink(other *PID) {
	a.pid.Unlink(other.p)
	other.p.Unlink(a.pid)
}

func (a *Actor) SpawnLink(fn Func, args ...interface{}) *PID {
	return SpawnLink(a.self, fn, args...)
}

func (a *Actor) handleTermination(r interface{}, err error) {
	reason := exitReason(r, err)
	if stop, ok := a.pid.StopRequested(); ok {
		reason = stop
	}

	links, ok := a.pid.Terminate(reason)
	if !ok {
		return
	}

	sig, controlled := r.(exitSignal)
	crashed := r != nil && !controlled
	if crashed {
		log().Warn("actor panicked", zap.String("pid", a.self.ID()), zap.Any("panic", r))
	}
	// a supervisor that panicked got no chance to shut its children down
	cascade := crashed && a.pid.Kind() == pid.KindSupervisor
	parent := a.pid.Parent()

	exit := sysmsg.Exit{Who: a.self, Parent: sig.cause, Reason: reason}
	for _, linked := range links {
		linked.Unlink(a.pid)
		if cascade && (parent == nil || parent.ID() != linked.ID()) {
			stop(linked, sysmsg.Reason{Type: sysmsg.Kill, Details: "supervisor crashed"})
			continue
		}
		linked.Mailbox().SendSystemMessage(exit)
	}
}

func exitReason(r interface{}, err error) sysmsg.Reason {
	switch sig := r.(type) {
	case nil:
	case exitSignal:
		return sig.reason
	default:
		return sysmsg.Reason{Type: sysmsg.Panic, Details: r}
	}
	if err != nil {
		return sysmsg.Reason{Type: sysmsg.Error, Details: err}
	}
	return sysmsg.NormalReason()
}

func link(a, b *PID) {
	if !b.p.Link(a.p) {
		running, reason := b.p.Status()
		if !running {
			a.p.Mailbox().SendSystemMessage(sysmsg.Exit{
				Who:    b,
				Reason: sysmsg.Reason{Type: sysmsg.NoProc, Details: reason},
			})
		}
		return
	}
	if !a.p.Link(b.p) {
		b.p.Unlink(a.p)
	}
}

func stop(p *pid.PID, reason sysmsg.Reason) {
	if p.RequestStop(reason) {
		p.Mailbox().SendSystemMessage(sysmsg.Stop{Reason: reason})
	}
}

func describe(who interface{}) string {
	if p, ok := PIDOf(who); ok {
		return p.String()
	}
	return fmt.Sprint(who)
}
