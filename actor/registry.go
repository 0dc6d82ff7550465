package actor

import (
	"context"
	"sync"
)

var (
	registryOnce sync.Once
	registryPID  *PID
)

type registryMap map[string]*PID

type cmdRegister struct {
	name string
	pid  *PID
}

type cmdUnregister struct {
	name string
	// pid, if set, must match the registered one
	pid *PID
}

type cmdGet struct {
	name   string
	sender *PID
}

func registryProcess() *PID {
	registryOnce.Do(func() {
		registryPID = Spawn(registry)
	})
	return registryPID
}

// Register associates name with pid, replacing any previous association.
func Register(name string, pid *PID) {
	Send(registryProcess(), cmdRegister{name: name, pid: pid})
}

func Unregister(name string) {
	Send(registryProcess(), cmdUnregister{name: name})
}

// UnregisterPID removes name only if it still refers to pid.
func UnregisterPID(name string, pid *PID) {
	Send(registryProcess(), cmdUnregister{name: name, pid: pid})
}

// WhereIs returns the running actor registered under name, or nil.
func WhereIs(name string) *PID {
	reg := registryProcess()
	future := NewFuture()
	Send(reg, cmdGet{name: name, sender: future.Self()})
	result, err := future.Await(context.Background(), reg)
	if err != nil {
		return nil
	}
	pid, _ := result.(*PID)
	return pid
}

// SendNamed sends message to the actor registered under name. It reports whether one was found.
func SendNamed(name string, message interface{}) bool {
	pid := WhereIs(name)
	if pid == nil {
		return false
	}
	Send(pid, message)
	return true
}

func registry(act *Actor) error {
	repo := registryMap{}

	act.Receive(func(message interface{}) (loop bool) {
		switch cmd := message.(type) {
		case cmdRegister:
			repo[cmd.name] = cmd.pid
		case cmdUnregister:
			if current, ok := repo[cmd.name]; ok && (cmd.pid == nil || current.ID() == cmd.pid.ID()) {
				delete(repo, cmd.name)
			}
		case cmdGet:
			pid, ok := repo[cmd.name]
			if ok && !StatusOf(pid).Running {
				delete(repo, cmd.name)
				pid = nil
			}
			Send(cmd.sender, pid)
		}
		return true
	})
	return nil
}
