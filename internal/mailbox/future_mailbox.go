package mailbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/hedisam/supervise/sysmsg"
)

var ErrDisposed = fmt.Errorf("mailbox's channel is closed")

// FutureMailbox accepts a single message; anything after the first one is dropped.
type FutureMailbox struct {
	m    chan interface{}
	done chan struct{}
	once sync.Once
}

func NewFutureMailbox() *FutureMailbox {
	return &FutureMailbox{
		m:    make(chan interface{}, 1),
		done: make(chan struct{}),
	}
}

func (f *FutureMailbox) SendUserMessage(message interface{}) {
	select {
	case <-f.done:
	case f.m <- message:
	default:
	}
}

func (f *FutureMailbox) SendSystemMessage(message interface{}) {
	f.SendUserMessage(message)
}

func (f *FutureMailbox) SetSystemHandler(SystemHandler) {}

// C exposes the reply channel so callers can select on it together with other events.
func (f *FutureMailbox) C() <-chan interface{} {
	return f.m
}

func (f *FutureMailbox) Receive(handler MessageHandler) {
	select {
	case msg := <-f.m:
		handler(msg)
	case <-f.done:
		handler(ErrDisposed)
	}
}

func (f *FutureMailbox) ReceiveWithTimeout(d time.Duration, handler MessageHandler) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case msg := <-f.m:
		handler(msg)
	case <-timer.C:
		handler(sysmsg.Timeout{Duration: d})
	case <-f.done:
		handler(ErrDisposed)
	}
}

func (f *FutureMailbox) Dispose() {
	f.once.Do(func() { close(f.done) })
}
