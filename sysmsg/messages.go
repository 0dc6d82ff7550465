package sysmsg

import (
	"time"
)

// Exit is delivered to every linked actor when an actor terminates
type Exit struct {
	// Who is the actor that terminated
	Who interface{}
	// Parent is the linked actor whose exit made "Who" terminate, if any
	Parent interface{}
	// Reason behind the termination
	Reason Reason
}

func (e Exit) systemMessage() {}

// Started is sent to the parent right after a linked actor has been spawned
type Started struct {
	Who interface{}
}

func (s Started) systemMessage() {}

// Stop is the command used to terminate an actor, usually sent by its supervisor
type Stop struct {
	Reason Reason
}

func (s Stop) systemMessage() {}

type Timeout struct {
	Duration time.Duration
}

func (t Timeout) systemMessage() {}
