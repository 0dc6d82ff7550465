package mailbox

import (
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/hedisam/supervise/sysmsg"
)

// queueMailbox keeps user messages in a bounded ring buffer and system messages in an
// unbounded queue, so exit notifications and stop commands never block the sender.
// There must be a single receiver.
type queueMailbox struct {
	userMailbox *queue.RingBuffer
	sysMailbox  *queue.Queue
	signal      chan struct{}
	done        chan struct{}
	once        sync.Once
	sysHandler  SystemHandler
}

func DefaultQueueMailbox() Mailbox {
	return NewQueueMailbox(defaultUserMailboxCap)
}

func NewQueueMailbox(userCap uint64) Mailbox {
	return &queueMailbox{
		userMailbox: queue.NewRingBuffer(userCap),
		sysMailbox:  queue.New(defaultSysMailboxHint),
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		sysHandler:  passThrough{},
	}
}

func (m *queueMailbox) SetSystemHandler(handler SystemHandler) {
	m.sysHandler = handler
}

// SendUserMessage blocks while the ring buffer is full, until the receiver catches up
// or the mailbox gets disposed.
func (m *queueMailbox) SendUserMessage(message interface{}) {
	select {
	case <-m.done:
		return
	default:
	}
	if err := m.userMailbox.Put(message); err != nil {
		// disposed while we were waiting for room
		return
	}
	m.notify()
}

func (m *queueMailbox) SendSystemMessage(message interface{}) {
	select {
	case <-m.done:
		return
	default:
	}
	if err := m.sysMailbox.Put(message); err != nil {
		return
	}
	m.notify()
}

func (m *queueMailbox) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *queueMailbox) Receive(handler MessageHandler) {
	for {
		if !m.drain(handler) {
			return
		}
		select {
		case <-m.done:
			return
		case <-m.signal:
		}
	}
}

func (m *queueMailbox) ReceiveWithTimeout(d time.Duration, handler MessageHandler) {
	if d <= 0 {
		m.Receive(handler)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		delivered := false
		keepOn := m.drain(func(message interface{}) bool {
			delivered = true
			return handler(message)
		})
		if !keepOn {
			return
		}
		if delivered {
			resetTimer(timer, d)
		}
		select {
		case <-m.done:
			return
		case <-m.signal:
		case <-timer.C:
			if !handler(sysmsg.Timeout{Duration: d}) {
				return
			}
			timer.Reset(d)
		}
	}
}

// drain delivers everything queued so far, system messages first.
// It returns false once the handler asks to stop.
func (m *queueMailbox) drain(handler MessageHandler) bool {
	for {
		if msg, ok := m.popSystem(); ok {
			pass, msg := m.sysHandler.HandleSystemMessage(msg)
			if pass && !handler(msg) {
				return false
			}
			continue
		}

		if m.userMailbox.Len() == 0 {
			return true
		}
		msg, err := m.userMailbox.Get()
		if err != nil {
			return true
		}
		if !handler(msg) {
			return false
		}
	}
}

// popSystem never blocks: only the receiver takes from the queue, so a non-empty
// queue stays non-empty until Get returns.
func (m *queueMailbox) popSystem() (interface{}, bool) {
	if m.sysMailbox.Empty() {
		return nil, false
	}
	items, err := m.sysMailbox.Get(1)
	if err != nil || len(items) == 0 {
		return nil, false
	}
	return items[0], true
}

func (m *queueMailbox) Dispose() {
	m.once.Do(func() {
		close(m.done)
		m.userMailbox.Dispose()
		m.sysMailbox.Dispose()
	})
}
