package actor

import (
	"context"
	"errors"

	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/internal/pid"
	"github.com/hedisam/supervise/sysmsg"
)

// ErrNoProc is returned when the target of a request terminates before answering.
var ErrNoProc = errors.New("actor: target process is not running")

// Future is a one-shot pid used to wait for the answer to a request.
type Future struct {
	pid     *pid.PID
	mailbox *mailbox.FutureMailbox
}

func NewFuture() *Future {
	m := mailbox.NewFutureMailbox()
	return &Future{
		pid:     pid.NewPID(m),
		mailbox: m,
	}
}

// Self is the pid the answer should be sent to.
func (f *Future) Self() *PID {
	return newPID(f.pid)
}

// Await waits for the answer, giving up if target terminates or ctx is done.
func (f *Future) Await(ctx context.Context, target *PID) (interface{}, error) {
	defer f.pid.Terminate(sysmsg.NormalReason())

	select {
	case msg := <-f.mailbox.C():
		return msg, nil
	case <-target.Done():
		// the answer might have been sent right before termination
		select {
		case msg := <-f.mailbox.C():
			return msg, nil
		default:
			return nil, ErrNoProc
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
