// Package demo has the workers the supervise CLI runs to show supervision in action.
package demo

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/supervisor"
	"github.com/hedisam/supervise/sysmsg"
)

const (
	// KindSteady ticks every interval until stopped.
	KindSteady = "steady"
	// KindFlapping crashes after running for interval.
	KindFlapping = "flapping"
	// KindOneShot exits normally after interval.
	KindOneShot = "oneshot"
	// KindPanicking panics after interval.
	KindPanicking = "panicking"
)

var ErrFlapped = errors.New("worker flapped")

// Kinds lists the worker kinds Spawner knows about.
func Kinds() []string {
	return []string{KindSteady, KindFlapping, KindOneShot, KindPanicking}
}

// Spawner returns a spawner for the worker kind. Every worker logs through logger with its id.
func Spawner(id, kind string, interval time.Duration, logger *zap.Logger) (supervisor.Spawner, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("worker %s: invalid interval %v", id, interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("worker", id), zap.String("kind", kind))

	var fn actor.Func
	switch kind {
	case KindSteady:
		fn = steady
	case KindFlapping:
		fn = flapping
	case KindOneShot:
		fn = oneShot
	case KindPanicking:
		fn = panicking
	default:
		return nil, fmt.Errorf("worker %s: unknown kind %q", id, kind)
	}
	return supervisor.Worker(fn, interval, logger), nil
}

func args(a *actor.Actor) (time.Duration, *zap.Logger) {
	return a.Args()[0].(time.Duration), a.Args()[1].(*zap.Logger)
}

func steady(a *actor.Actor) error {
	interval, logger := args(a)
	logger.Info("worker started", zap.Stringer("pid", a.Self()))

	ticks := 0
	a.ReceiveWithTimeout(interval, func(message interface{}) (loop bool) {
		if _, ok := message.(sysmsg.Timeout); ok {
			ticks++
			logger.Debug("tick", zap.Int("ticks", ticks))
		}
		return true
	})
	return nil
}

func flapping(a *actor.Actor) error {
	interval, logger := args(a)
	logger.Info("worker started", zap.Stringer("pid", a.Self()))

	select {
	case <-time.After(interval):
		return ErrFlapped
	case <-a.Done():
		return nil
	}
}

func oneShot(a *actor.Actor) error {
	interval, logger := args(a)
	logger.Info("worker started", zap.Stringer("pid", a.Self()))

	select {
	case <-time.After(interval):
		logger.Info("work done")
	case <-a.Done():
	}
	return nil
}

func panicking(a *actor.Actor) error {
	interval, logger := args(a)
	logger.Info("worker started", zap.Stringer("pid", a.Self()))

	select {
	case <-time.After(interval):
		panic("demo worker panic")
	case <-a.Done():
		return nil
	}
}
