package actor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/sysmsg"
)

var _ mailbox.SystemHandler = (*systemHandler)(nil)

type systemHandler struct {
	actor *Actor
}

// HandleSystemMessage is called by the mailbox receiver for system messages
func (h *systemHandler) HandleSystemMessage(message interface{}) (bool, interface{}) {
	switch msg := message.(type) {
	case sysmsg.Exit:
		if h.actor.trapExited() {
			return true, msg
		}
		if msg.Reason.Abnormal() {
			// a linked actor crashed and we're not trapping exits, so we go down too
			panic(exitSignal{reason: sysmsg.Reason{
				Type:    sysmsg.Kill,
				Details: fmt.Sprintf("linked actor %s exited: %v", describe(msg.Who), msg.Reason),
			}, cause: msg.Who})
		}
		return false, nil
	case sysmsg.Stop:
		if h.actor.trapExited() {
			return true, msg
		}
		panic(exitSignal{reason: msg.Reason})
	case sysmsg.Started:
		return h.actor.trapExited(), msg
	default:
		log().Debug("mailbox: unknown sys message", zap.Any("message", msg))
		return false, nil
	}
}
