package mailbox

import "time"

const (
	defaultUserMailboxCap = 1024
	defaultSysMailboxHint = 16
)

type MessageHandler func(message interface{}) (loop bool)

// SystemHandler intercepts system messages before they reach the user handler.
// It may panic to unwind the receiving actor.
type SystemHandler interface {
	HandleSystemMessage(message interface{}) (passToUser bool, msg interface{})
}

type Mailbox interface {
	SendUserMessage(message interface{})
	SendSystemMessage(message interface{})
	Receive(handler MessageHandler)
	ReceiveWithTimeout(d time.Duration, handler MessageHandler)
	SetSystemHandler(handler SystemHandler)
	Dispose()
}

type passThrough struct{}

func (passThrough) HandleSystemMessage(message interface{}) (bool, interface{}) {
	return true, message
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
