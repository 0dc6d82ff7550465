package supervisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/hedisam/supervise/sysmsg"
)

type EventType int

const (
	ChildStarted EventType = iota
	ChildExited
	ChildRestarted
	// RestartSkipped: the child's policy did not warrant a restart
	RestartSkipped
	// RestartDenied: the restart budget was exhausted
	RestartDenied
	// SpawnFailed is emitted for every failed spawn attempt
	SpawnFailed
	Meltdown
	ShuttingDown
)

var eventNames = [...]string{
	ChildStarted:   "child_started",
	ChildExited:    "child_exited",
	ChildRestarted: "child_restarted",
	RestartSkipped: "restart_skipped",
	RestartDenied:  "restart_denied",
	SpawnFailed:    "spawn_failed",
	Meltdown:       "meltdown",
	ShuttingDown:   "shutting_down",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventNames[t]
}

// Event describes something the supervisor did or observed.
type Event struct {
	Time       time.Time
	Supervisor string
	// Child is empty for supervisor-level events
	Child  string
	Type   EventType
	Reason sysmsg.Reason
	Err    error
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Supervisor, e.Type)
	if e.Child != "" {
		fmt.Fprintf(&b, " child=%s", e.Child)
	}
	if e.Reason.Type != "" {
		fmt.Fprintf(&b, " reason=%q", e.Reason.String())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " err=%q", e.Err.Error())
	}
	return b.String()
}

// EventHandler is called on the supervisor's goroutine. It must not block and must not call
// back into the supervisor's Ref.
type EventHandler func(Event)
