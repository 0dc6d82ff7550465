package actor

import (
	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/internal/pid"
	"github.com/hedisam/supervise/sysmsg"
)

// Spawn runs fn as a new actor, passing args to it.
func Spawn(fn Func, args ...interface{}) *PID {
	a := createActor(args)
	spawn(fn, a)
	return a.Self()
}

// SpawnLink spawns an actor linked to parent. The link is in place before fn starts, so the
// parent is always told about the exit. The parent also gets a sysmsg.Started.
func SpawnLink(parent *PID, fn Func, args ...interface{}) *PID {
	a := createActor(args)
	a.pid.SetParent(parent.p)
	link(parent, a.self)
	parent.p.Mailbox().SendSystemMessage(sysmsg.Started{Who: a.self})
	spawn(fn, a)
	return a.Self()
}

func createActor(args []interface{}) *Actor {
	return newActor(pid.NewPID(mailbox.DefaultQueueMailbox()), args)
}

func spawn(fn Func, a *Actor) {
	go func() {
		var err error
		defer func() {
			a.handleTermination(recover(), err)
		}()
		err = fn(a)
	}()
}

// Send delivers a user message. It blocks while the target's mailbox is full.
func Send(p *PID, message interface{}) {
	if p == nil {
		return
	}
	p.p.Mailbox().SendUserMessage(message)
}

// Stop asks the actor to terminate with the given reason: its context gets canceled and a
// sysmsg.Stop is queued. Only the first reason counts. It never blocks.
func Stop(p *PID, reason sysmsg.Reason) {
	stop(p.p, reason)
}

// Exit terminates the calling actor with reason. It must be called from the actor's own goroutine.
func Exit(reason sysmsg.Reason) {
	panic(exitSignal{reason: reason})
}
