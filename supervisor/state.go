package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/sysmsg"
)

type childEntry struct {
	spec ChildSpec
	// handle is nil iff the child is not running
	handle  *actor.PID
	tracker *RestartTracker
}

// state is owned by the supervisor's goroutine. Nothing else touches it.
type state struct {
	cfg        Config
	supervisor *actor.Actor
	logger     *zap.Logger

	children []*childEntry
	byPID    map[string]*childEntry

	shuttingDown bool
	// exit is the reason the supervisor stops with once its loop ends
	exit sysmsg.Reason
}

func newState(cfg Config, supervisor *actor.Actor) *state {
	s := &state{
		cfg:        cfg,
		supervisor: supervisor,
		logger:     cfg.Logger.With(zap.String("supervisor", cfg.Name)),
		byPID:      make(map[string]*childEntry),
	}
	for _, spec := range cfg.Children {
		s.children = append(s.children, s.newEntry(spec))
	}
	return s
}

func (s *state) newEntry(spec ChildSpec) *childEntry {
	return &childEntry{spec: spec, tracker: NewRestartTracker(s.cfg.Clock)}
}

func (s *state) ctx() context.Context {
	return s.supervisor.Ctx()
}

// init spawns every child once, in order. On failure the children already started are stopped.
func (s *state) init() error {
	for i, c := range s.children {
		child, err := spawnOnce(s.ctx(), c.spec.Spawner, s.supervisor.Self())
		if err != nil {
			s.logger.Error("startup spawn failed", zap.String("child", c.spec.ID), zap.Error(err))
			s.emit(Event{Type: SpawnFailed, Child: c.spec.ID, Err: err})
			s.stopChildren(s.children[:i], sysmsg.Reason{Type: sysmsg.StartupFailed, Details: c.spec.ID})
			return fmt.Errorf("supervisor %s: start child %s: %w", s.cfg.Name, c.spec.ID, err)
		}
		s.attach(c, child)
		s.logger.Info("child started", zap.String("child", c.spec.ID), zap.Stringer("pid", child))
		s.emit(Event{Type: ChildStarted, Child: c.spec.ID})
	}
	return nil
}

// handle processes one message. It returns false once the supervisor must stop.
func (s *state) handle(message interface{}) bool {
	for _, c := range s.children {
		c.tracker.MaybeReset(s.cfg.Budget)
	}
	if s.ctx().Err() != nil {
		// a stop was requested, its message is on the way
		s.shuttingDown = true
	}

	switch msg := message.(type) {
	case sysmsg.Stop:
		s.shutdown(msg.Reason)
		return false
	case call:
		s.handleCall(msg)
		return true
	}

	if s.shuttingDown {
		return true
	}

	switch msg := message.(type) {
	case sysmsg.Started:
	case sysmsg.Exit:
		s.onExit(msg)
	default:
		s.logger.Debug("unknown message", zap.Any("message", msg))
	}
	return s.exit.Type == ""
}

func (s *state) onExit(msg sysmsg.Exit) {
	who, ok := actor.PIDOf(msg.Who)
	if !ok {
		return
	}
	c, found := s.byPID[who.ID()]
	if !found {
		// a child we stopped ourselves, or some other linked actor
		return
	}
	s.handleChildExit(c, msg.Reason)
}

func (s *state) handleChildExit(c *childEntry, reason sysmsg.Reason) {
	abnormal := reason.Abnormal()
	s.detach(c)
	s.emit(Event{Type: ChildExited, Child: c.spec.ID, Reason: reason})

	fields := []zap.Field{zap.String("child", c.spec.ID), zap.Stringer("reason", reason)}
	if abnormal {
		s.logger.Warn("child exited abnormally", fields...)
	} else {
		s.logger.Info("child exited", fields...)
	}

	if !shouldRestart(c.spec.Restart, abnormal) {
		s.emit(Event{Type: RestartSkipped, Child: c.spec.ID, Reason: reason})
		return
	}

	if !c.tracker.RecordRestart(s.cfg.Budget) {
		s.emit(Event{Type: RestartDenied, Child: c.spec.ID, Reason: reason})
		s.meltdown(sysmsg.Reason{
			Type:    sysmsg.Meltdown,
			Details: fmt.Sprintf("child %s exceeded %d restarts in %v", c.spec.ID, s.cfg.Budget.MaxRestarts, s.cfg.Budget.MaxWindow),
		})
		return
	}

	if s.respawn(c) {
		s.logger.Info("child restarted", zap.String("child", c.spec.ID), zap.Stringer("pid", c.handle))
		s.emit(Event{Type: ChildRestarted, Child: c.spec.ID, Reason: reason})
		return
	}
	if s.ctx().Err() != nil {
		s.logger.Info("respawn aborted by shutdown", zap.String("child", c.spec.ID))
		s.shuttingDown = true
		return
	}
	s.meltdown(sysmsg.Reason{
		Type:    sysmsg.SpawnRetryExhausted,
		Details: fmt.Sprintf("child %s could not be respawned after %d attempts", c.spec.ID, s.cfg.Retry.MaxAttempts),
	})
}

// respawn starts c again with the retry strategy.
func (s *state) respawn(c *childEntry) bool {
	attempt := 0
	child, ok := SpawnWithRetry(s.ctx(), s.cfg.Retry, s.cfg.Clock, func(ctx context.Context) (*actor.PID, error) {
		attempt++
		child, err := spawnOnce(ctx, c.spec.Spawner, s.supervisor.Self())
		if err != nil {
			s.logger.Warn("spawn attempt failed", zap.String("child", c.spec.ID), zap.Int("attempt", attempt), zap.Error(err))
			s.emit(Event{Type: SpawnFailed, Child: c.spec.ID, Err: err})
		}
		return child, err
	})
	if !ok {
		return false
	}
	s.attach(c, child)
	return true
}

func (s *state) meltdown(reason sysmsg.Reason) {
	s.shuttingDown = true
	s.exit = reason
	s.logger.Error("supervisor meltdown", zap.Stringer("reason", reason))
	s.emit(Event{Type: Meltdown, Reason: reason})
	s.stopChildren(s.children, reason)
}

func (s *state) shutdown(reason sysmsg.Reason) {
	s.shuttingDown = true
	s.exit = reason
	s.logger.Info("supervisor shutting down", zap.Stringer("reason", reason))
	s.emit(Event{Type: ShuttingDown, Reason: reason})
	s.stopChildren(s.children, sysmsg.ShutdownReason(s.cfg.Name))
}

// stopChildren stops every running child in children, then waits for each up to its Shutdown.
func (s *state) stopChildren(children []*childEntry, reason sysmsg.Reason) {
	stopping := make([]*childEntry, 0, len(children))
	handles := make([]*actor.PID, 0, len(children))
	for _, c := range children {
		if c.handle == nil {
			continue
		}
		handle := c.handle
		actor.Stop(handle, reason)
		s.detach(c)
		s.emit(Event{Type: ChildExited, Child: c.spec.ID, Reason: reason})
		stopping = append(stopping, c)
		handles = append(handles, handle)
	}
	for i, c := range stopping {
		s.awaitExit(c, handles[i])
	}
}

func (s *state) awaitExit(c *childEntry, handle *actor.PID) {
	if c.spec.Shutdown <= 0 {
		return
	}
	timer := s.cfg.Clock.Timer(c.spec.Shutdown)
	defer timer.Stop()
	select {
	case <-handle.Done():
	case <-timer.C:
		s.logger.Warn("child did not stop in time", zap.String("child", c.spec.ID), zap.Duration("timeout", c.spec.Shutdown))
	}
}

func (s *state) attach(c *childEntry, child *actor.PID) {
	c.handle = child
	s.byPID[child.ID()] = c
	actor.Register(s.childName(c.spec.ID), child)
}

func (s *state) detach(c *childEntry) {
	if c.handle == nil {
		return
	}
	delete(s.byPID, c.handle.ID())
	actor.UnregisterPID(s.childName(c.spec.ID), c.handle)
	c.handle = nil
}

// childName is the name a child is registered under: <supervisor>/<child>.
func (s *state) childName(id string) string {
	return s.cfg.Name + "/" + id
}

func (s *state) find(id string) (int, *childEntry) {
	for i, c := range s.children {
		if c.spec.ID == id {
			return i, c
		}
	}
	return -1, nil
}

func (s *state) emit(e Event) {
	if len(s.cfg.EventHandlers) == 0 {
		return
	}
	e.Time = s.cfg.Clock.Now()
	e.Supervisor = s.cfg.Name
	for _, handler := range s.cfg.EventHandlers {
		handler(e)
	}
}

func (s *state) handleCall(c call) {
	reply := func(v interface{}) { actor.Send(c.sender, v) }

	switch request := c.request.(type) {
	case whichChildren:
		info := make([]ChildInfo, 0, len(s.children))
		for _, child := range s.children {
			info = append(info, ChildInfo{
				ID:       child.spec.ID,
				Restart:  child.spec.Restart,
				Running:  child.handle != nil,
				PID:      child.handle,
				Restarts: child.tracker.Restarts(s.cfg.Budget),
			})
		}
		reply(info)
	case countChildren:
		count := ChildCount{Specs: len(s.children)}
		for _, child := range s.children {
			if child.handle != nil {
				count.Active++
			}
		}
		reply(count)
	case terminateChild:
		_, child := s.find(request.id)
		if child == nil {
			reply(fmt.Errorf("terminate %s: %w", request.id, ErrChildNotFound))
			return
		}
		if child.handle == nil {
			reply(fmt.Errorf("terminate %s: %w", request.id, ErrChildNotRunning))
			return
		}
		s.logger.Info("terminating child", zap.String("child", request.id))
		s.stopChildren([]*childEntry{child}, sysmsg.ShutdownReason("terminated"))
		reply(ok{})
	case restartChild:
		if s.shuttingDown {
			reply(ErrSupervisorStopped)
			return
		}
		_, child := s.find(request.id)
		if child == nil {
			reply(fmt.Errorf("restart %s: %w", request.id, ErrChildNotFound))
			return
		}
		if child.handle != nil {
			reply(fmt.Errorf("restart %s: %w", request.id, ErrChildRunning))
			return
		}
		if !s.respawn(child) {
			reply(fmt.Errorf("restart %s: spawn failed after %d attempts", request.id, s.cfg.Retry.MaxAttempts))
			return
		}
		s.logger.Info("child started", zap.String("child", request.id), zap.Stringer("pid", child.handle))
		s.emit(Event{Type: ChildStarted, Child: request.id})
		reply(ok{})
	case startChild:
		if s.shuttingDown {
			reply(ErrSupervisorStopped)
			return
		}
		if err := request.spec.validate(); err != nil {
			reply(err)
			return
		}
		if _, existing := s.find(request.spec.ID); existing != nil {
			reply(fmt.Errorf("start %s: %w", request.spec.ID, ErrDuplicateChild))
			return
		}
		child := s.newEntry(request.spec)
		if !s.respawn(child) {
			reply(fmt.Errorf("start %s: spawn failed after %d attempts", request.spec.ID, s.cfg.Retry.MaxAttempts))
			return
		}
		s.children = append(s.children, child)
		s.logger.Info("child started", zap.String("child", request.spec.ID), zap.Stringer("pid", child.handle))
		s.emit(Event{Type: ChildStarted, Child: request.spec.ID})
		reply(ok{})
	case deleteChild:
		i, child := s.find(request.id)
		if child == nil {
			reply(fmt.Errorf("delete %s: %w", request.id, ErrChildNotFound))
			return
		}
		if child.handle != nil {
			reply(fmt.Errorf("delete %s: %w", request.id, ErrChildRunning))
			return
		}
		s.children = append(s.children[:i], s.children[i+1:]...)
		reply(ok{})
	default:
		reply(fmt.Errorf("unknown request %T", request))
	}
}
