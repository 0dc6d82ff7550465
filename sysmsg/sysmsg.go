package sysmsg

import "fmt"

type SystemMessage interface {
	systemMessage()
}

// Reason types. Normal and Shutdown are the only non-failure exits.
const (
	Normal   = "normal"
	Shutdown = "shutdown"
	Error    = "error"
	Panic    = "panic"
	// Kill is used when an actor dies because a linked actor exited abnormally
	Kill = "kill"

	Meltdown            = "meltdown"
	SpawnRetryExhausted = "spawn_retry_exhausted"
	StartupFailed       = "startup_failed"
	// NoProc is reported when linking to an actor that has already terminated
	NoProc = "noproc"
)

type Reason struct {
	Type    string
	Details interface{}
}

// Abnormal reports whether the exit should be treated as a crash.
func (r Reason) Abnormal() bool {
	return r.Type != Normal && r.Type != Shutdown
}

func (r Reason) String() string {
	if r.Details == nil {
		return r.Type
	}
	return fmt.Sprintf("%s: %v", r.Type, r.Details)
}

func NormalReason() Reason {
	return Reason{Type: Normal}
}

func ShutdownReason(details interface{}) Reason {
	return Reason{Type: Shutdown, Details: details}
}
