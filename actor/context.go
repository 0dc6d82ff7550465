package actor

import (
	"context"
	"time"

	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/internal/pid"
)

type MessageHandler = mailbox.MessageHandler

type Context struct {
	pid  *pid.PID
	args []interface{}
	ctx  context.Context
}

func newContext(p *pid.PID, args []interface{}) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	p.SetCancel(cancel)
	return &Context{
		pid:  p,
		args: args,
		ctx:  ctx,
	}
}

func (ctx *Context) Args() []interface{} {
	return ctx.args
}

// Receive blocks handling messages until the handler returns false.
// System messages are processed first and might terminate the actor.
func (ctx *Context) Receive(handler MessageHandler) {
	ctx.pid.Mailbox().Receive(handler)
}

func (ctx *Context) ReceiveWithTimeout(d time.Duration, handler MessageHandler) {
	ctx.pid.Mailbox().ReceiveWithTimeout(d, handler)
}

// Done returns a channel that's closed when the actor is asked to stop.
// Actors running long tasks outside Receive should watch it and return.
func (ctx *Context) Done() <-chan struct{} {
	return ctx.ctx.Done()
}

// Ctx returns a context.Context canceled when the actor is asked to stop.
func (ctx *Context) Ctx() context.Context {
	return ctx.ctx
}
