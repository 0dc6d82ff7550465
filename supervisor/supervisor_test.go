package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/sysmsg"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

var errCrash = errors.New("crash")

func idle(a *actor.Actor) error {
	<-a.Done()
	return nil
}

func crashAfter(d time.Duration) actor.Func {
	return func(a *actor.Actor) error {
		select {
		case <-time.After(d):
			return errCrash
		case <-a.Done():
			return nil
		}
	}
}

func exitAfter(d time.Duration) actor.Func {
	return func(a *actor.Actor) error {
		select {
		case <-time.After(d):
		case <-a.Done():
		}
		return nil
	}
}

// counted spawns fn(n) for the n-th spawn, counting spawns in count.
func counted(count *atomic.Int32, fn func(n int32) actor.Func) Spawner {
	return SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		n := count.Add(1)
		return actor.SpawnLink(sup, fn(n)), nil
	})
}

func always(fn actor.Func) func(int32) actor.Func {
	return func(int32) actor.Func { return fn }
}

// firstThen runs first on the initial spawn and then on every respawn.
func firstThen(first, then actor.Func) func(int32) actor.Func {
	return func(n int32) actor.Func {
		if n == 1 {
			return first
		}
		return then
	}
}

func fastRetry() RetryStrategy {
	return RetryStrategy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func startSupervisor(t *testing.T, cfg Config) *Ref {
	t.Helper()
	ref, err := Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = ref.Shutdown(ctx)
	})
	return ref
}

func childPID(t *testing.T, ref *Ref, id string) *actor.PID {
	t.Helper()
	children, err := ref.WhichChildren()
	require.NoError(t, err)
	for _, c := range children {
		if c.ID == id {
			return c.PID
		}
	}
	t.Fatalf("child %s not found", id)
	return nil
}

func waitStopped(t *testing.T, ref *Ref) actor.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Wait(ctx))
	return ref.Status()
}

func TestPermanent_RestartsAfterCrash(t *testing.T) {
	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("w", counted(&spawns, firstThen(crashAfter(10*time.Millisecond), idle))),
	).SetRetry(fastRetry()))

	require.Eventually(t, func() bool { return spawns.Load() == 2 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		pid := childPID(t, ref, "w")
		return pid != nil && actor.StatusOf(pid).Running
	}, waitFor, tick)
	assert.True(t, ref.Status().Running)
}

func TestPermanent_RestartsAfterNormalExit(t *testing.T) {
	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("w", counted(&spawns, firstThen(exitAfter(10*time.Millisecond), idle))),
	))

	require.Eventually(t, func() bool { return spawns.Load() == 2 }, waitFor, tick)
	assert.True(t, ref.Status().Running)
}

func TestTransient(t *testing.T) {
	t.Run("normal exit is not restarted", func(t *testing.T) {
		var spawns atomic.Int32
		ref := startSupervisor(t, NewConfig(
			NewChildSpec("w", counted(&spawns, always(exitAfter(10*time.Millisecond)))).SetRestart(Transient),
		))

		require.Eventually(t, func() bool {
			count, err := ref.CountChildren()
			return err == nil && count.Active == 0
		}, waitFor, tick)
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(1), spawns.Load())
		assert.True(t, ref.Status().Running)
	})

	t.Run("abnormal exit is restarted", func(t *testing.T) {
		var spawns atomic.Int32
		ref := startSupervisor(t, NewConfig(
			NewChildSpec("w", counted(&spawns, firstThen(crashAfter(10*time.Millisecond), idle))).SetRestart(Transient),
		))

		require.Eventually(t, func() bool { return spawns.Load() == 2 }, waitFor, tick)
		assert.True(t, ref.Status().Running)
	})
}

func TestTemporary_NeverRestarted(t *testing.T) {
	for name, fn := range map[string]actor.Func{
		"crash":  crashAfter(10 * time.Millisecond),
		"normal": exitAfter(10 * time.Millisecond),
		"panic":  func(*actor.Actor) error { panic("boom") },
	} {
		t.Run(name, func(t *testing.T) {
			var spawns atomic.Int32
			ref := startSupervisor(t, NewConfig(
				NewChildSpec("w", counted(&spawns, always(fn))).SetRestart(Temporary),
			))

			require.Eventually(t, func() bool {
				count, err := ref.CountChildren()
				return err == nil && count.Active == 0
			}, waitFor, tick)
			time.Sleep(100 * time.Millisecond)
			assert.Equal(t, int32(1), spawns.Load())
			assert.True(t, ref.Status().Running)
		})
	}
}

func TestMultiChildIndependence(t *testing.T) {
	var tempSpawns, permSpawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("temp", counted(&tempSpawns, always(crashAfter(10*time.Millisecond)))).SetRestart(Temporary),
		NewChildSpec("perm", counted(&permSpawns, always(idle))),
	))
	perm := childPID(t, ref, "perm")

	require.Eventually(t, func() bool {
		count, err := ref.CountChildren()
		return err == nil && count.Active == 1
	}, waitFor, tick)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), tempSpawns.Load())
	assert.Equal(t, int32(1), permSpawns.Load())
	assert.True(t, actor.StatusOf(perm).Running)
	assert.Equal(t, perm.ID(), childPID(t, ref, "perm").ID())
	assert.True(t, ref.Status().Running)
}

func TestSiblingNotRestartedOnCrash(t *testing.T) {
	var crashySpawns, steadySpawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("crashy", counted(&crashySpawns, firstThen(crashAfter(10*time.Millisecond), idle))).SetRestart(Transient),
		NewChildSpec("steady", counted(&steadySpawns, always(idle))).SetRestart(Temporary),
	))
	steady := childPID(t, ref, "steady")

	require.Eventually(t, func() bool { return crashySpawns.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), steadySpawns.Load())
	assert.True(t, actor.StatusOf(steady).Running)
}

func TestBudget_Meltdown(t *testing.T) {
	var spawns, siblings atomic.Int32
	ref, err := Start(NewConfig(
		NewChildSpec("flappy", counted(&spawns, always(crashAfter(50*time.Millisecond)))),
		NewChildSpec("healthy", counted(&siblings, always(idle))),
	).SetBudget(RestartBudget{MaxRestarts: 2, MaxWindow: 10 * time.Second}))
	require.NoError(t, err)
	healthy := childPID(t, ref, "healthy")

	status := waitStopped(t, ref)
	assert.False(t, status.Running)
	assert.Equal(t, sysmsg.Meltdown, status.Reason.Type)
	assert.Equal(t, int32(3), spawns.Load())

	<-healthy.Done()
	assert.Equal(t, sysmsg.Meltdown, actor.StatusOf(healthy).Reason.Type, "meltdown stops healthy siblings too")
	assert.Equal(t, int32(1), siblings.Load())
}

func TestBudget_ZeroMaxRestarts(t *testing.T) {
	var spawns atomic.Int32
	ref, err := Start(NewConfig(
		NewChildSpec("w", counted(&spawns, always(crashAfter(10*time.Millisecond)))),
	).SetBudget(RestartBudget{MaxRestarts: 0, MaxWindow: time.Second}))
	require.NoError(t, err)

	assert.Equal(t, sysmsg.Meltdown, waitStopped(t, ref).Reason.Type)
	assert.Equal(t, int32(1), spawns.Load())
}

func TestBudget_QuietPeriodReset(t *testing.T) {
	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("w", counted(&spawns, always(crashAfter(300*time.Millisecond)))),
	).SetBudget(RestartBudget{MaxRestarts: 1, MaxWindow: 10 * time.Second, ResetAfter: 200 * time.Millisecond}))

	require.Eventually(t, func() bool { return spawns.Load() >= 3 }, waitFor, tick)
	assert.True(t, ref.Status().Running)
}

func TestBudget_WindowExpiry(t *testing.T) {
	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("w", counted(&spawns, always(crashAfter(300*time.Millisecond)))),
	).SetBudget(RestartBudget{MaxRestarts: 1, MaxWindow: 200 * time.Millisecond}))

	require.Eventually(t, func() bool { return spawns.Load() >= 3 }, waitFor, tick)
	assert.True(t, ref.Status().Running)
}

func TestShutdown_SuppressesRestart(t *testing.T) {
	var spawns atomic.Int32
	ref, err := Start(NewConfig(NewChildSpec("w", counted(&spawns, always(idle)))))
	require.NoError(t, err)
	child := childPID(t, ref, "w")

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Shutdown(ctx))
	require.NoError(t, ref.Shutdown(ctx), "shutdown is idempotent")

	assert.Equal(t, sysmsg.Shutdown, ref.Status().Reason.Type)
	status := actor.StatusOf(child)
	assert.False(t, status.Running)
	assert.Equal(t, sysmsg.Shutdown, status.Reason.Type)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), spawns.Load())
}

func TestSpawnRetryExhausted(t *testing.T) {
	var spawns atomic.Int32
	errSpawn := errors.New("no resources")
	spawner := SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		if spawns.Add(1) == 1 {
			return actor.SpawnLink(sup, crashAfter(10*time.Millisecond)), nil
		}
		return nil, errSpawn
	})

	var failures atomic.Int32
	ref, err := Start(NewConfig(NewChildSpec("w", spawner)).
		SetRetry(fastRetry()).
		AddEventHandler(func(e Event) {
			if e.Type == SpawnFailed {
				failures.Add(1)
			}
		}))
	require.NoError(t, err)

	assert.Equal(t, sysmsg.SpawnRetryExhausted, waitStopped(t, ref).Reason.Type)
	assert.Equal(t, int32(4), spawns.Load())
	assert.Equal(t, int32(3), failures.Load())
}

func TestSpawnRetry_RecoversWithinAttempts(t *testing.T) {
	var spawns atomic.Int32
	spawner := SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		switch spawns.Add(1) {
		case 1:
			return actor.SpawnLink(sup, crashAfter(10*time.Millisecond)), nil
		case 2:
			return nil, errors.New("not yet")
		case 3:
			panic("flaky spawner")
		default:
			return actor.SpawnLink(sup, idle), nil
		}
	})
	ref := startSupervisor(t, NewConfig(NewChildSpec("w", spawner)).SetRetry(fastRetry()))

	require.Eventually(t, func() bool { return spawns.Load() == 4 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		count, err := ref.CountChildren()
		return err == nil && count.Active == 1
	}, waitFor, tick)
	assert.True(t, ref.Status().Running)
}

func TestShutdown_AbortsRespawnWait(t *testing.T) {
	var spawns atomic.Int32
	failed := make(chan struct{}, 1)
	spawner := SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		if spawns.Add(1) == 1 {
			return actor.SpawnLink(sup, crashAfter(10*time.Millisecond)), nil
		}
		select {
		case failed <- struct{}{}:
		default:
		}
		return nil, errors.New("down")
	})
	ref, err := Start(NewConfig(NewChildSpec("w", spawner)).
		SetRetry(RetryStrategy{MaxAttempts: 5, BaseDelay: time.Hour}))
	require.NoError(t, err)

	select {
	case <-failed:
	case <-time.After(waitFor):
		t.Fatal("respawn was never attempted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Shutdown(ctx))
	assert.Equal(t, sysmsg.Shutdown, ref.Status().Reason.Type)
	assert.Equal(t, int32(2), spawns.Load())
}

func TestStart_FailureStopsStartedChildren(t *testing.T) {
	started := make(chan *actor.PID, 1)
	first := SpawnFunc(func(_ context.Context, sup *actor.PID) (*actor.PID, error) {
		pid := actor.SpawnLink(sup, idle)
		started <- pid
		return pid, nil
	})
	errBoom := errors.New("boom")
	second := SpawnFunc(func(context.Context, *actor.PID) (*actor.PID, error) {
		return nil, errBoom
	})

	ref, err := Start(NewConfig(NewChildSpec("first", first), NewChildSpec("second", second)))
	require.Error(t, err)
	assert.Nil(t, ref)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "second")

	pid := <-started
	select {
	case <-pid.Done():
	case <-time.After(waitFor):
		t.Fatal("first child was not stopped")
	}
	assert.Equal(t, sysmsg.StartupFailed, actor.StatusOf(pid).Reason.Type)
}

func TestStart_InvalidConfig(t *testing.T) {
	_, err := Start(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid supervisor config")
}

func TestRef_CallAPI(t *testing.T) {
	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("a", counted(&spawns, always(idle))),
		NewChildSpec("b", Worker(idle)).SetRestart(Transient),
	))

	count, err := ref.CountChildren()
	require.NoError(t, err)
	assert.Equal(t, ChildCount{Specs: 2, Active: 2}, count)

	children, err := ref.WhichChildren()
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].ID)
	assert.Equal(t, Permanent, children[0].Restart)
	assert.Equal(t, Transient, children[1].Restart)
	assert.True(t, children[0].Running)

	a := children[0].PID
	require.NoError(t, ref.TerminateChild("a"))
	assert.Equal(t, sysmsg.Shutdown, actor.StatusOf(a).Reason.Type)
	assert.ErrorIs(t, ref.TerminateChild("a"), ErrChildNotRunning)
	assert.ErrorIs(t, ref.TerminateChild("missing"), ErrChildNotFound)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), spawns.Load(), "terminated children are not restarted")
	assert.Nil(t, childPID(t, ref, "a"))

	assert.ErrorIs(t, ref.DeleteChild("b"), ErrChildRunning)
	require.NoError(t, ref.RestartChild("a"))
	assert.Equal(t, int32(2), spawns.Load())
	assert.ErrorIs(t, ref.RestartChild("a"), ErrChildRunning)

	assert.ErrorIs(t, ref.StartChild(NewChildSpec("a", Worker(idle))), ErrDuplicateChild)
	require.Error(t, ref.StartChild(ChildSpec{ID: "c"}))
	require.NoError(t, ref.StartChild(NewChildSpec("c", Worker(idle))))
	count, err = ref.CountChildren()
	require.NoError(t, err)
	assert.Equal(t, ChildCount{Specs: 3, Active: 3}, count)

	require.NoError(t, ref.TerminateChild("c"))
	require.NoError(t, ref.DeleteChild("c"))
	assert.ErrorIs(t, ref.DeleteChild("c"), ErrChildNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Shutdown(ctx))
	_, err = ref.WhichChildren()
	assert.ErrorIs(t, err, ErrSupervisorStopped)
	assert.ErrorIs(t, ref.RestartChild("a"), ErrSupervisorStopped)
}

func TestChildrenAreRegistered(t *testing.T) {
	ref := startSupervisor(t, NewConfig(NewChildSpec("w", Worker(idle))).SetName("registered"))

	pid := actor.WhereIs("registered/w")
	require.NotNil(t, pid)
	assert.Equal(t, childPID(t, ref, "w").ID(), pid.ID())
	assert.Equal(t, ref.PID().ID(), actor.WhereIs("registered").ID())
}

func TestNestedSupervisor(t *testing.T) {
	var inner atomic.Int32
	nested := NewConfig(
		NewChildSpec("inner", counted(&inner, firstThen(crashAfter(10*time.Millisecond), idle))),
	).SetName("nested").SetBudget(RestartBudget{MaxRestarts: 0, MaxWindow: time.Second})

	var nestedStarts atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("nested", Nested(nested)),
	).AddEventHandler(func(e Event) {
		if e.Child == "nested" && (e.Type == ChildStarted || e.Type == ChildRestarted) {
			nestedStarts.Add(1)
		}
	}))

	require.Eventually(t, func() bool { return nestedStarts.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int32(2), inner.Load())
	assert.True(t, ref.Status().Running)

	nestedPID := childPID(t, ref, "nested")
	assert.True(t, actor.StatusOf(nestedPID).Running)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Shutdown(ctx))
	<-nestedPID.Done()
	assert.Equal(t, sysmsg.Shutdown, actor.StatusOf(nestedPID).Reason.Type)
}

func TestMeltdownIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ref, err := Start(NewConfig(
		NewChildSpec("w", Worker(crashAfter(10*time.Millisecond))),
	).SetName("logged").SetLogger(zap.New(core)).SetBudget(RestartBudget{MaxRestarts: 1, MaxWindow: time.Minute}))
	require.NoError(t, err)
	waitStopped(t, ref)

	meltdown := logs.FilterMessage("supervisor meltdown")
	require.Equal(t, 1, meltdown.Len())
	entry := meltdown.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Equal(t, "logged", entry.ContextMap()["supervisor"])
	assert.Equal(t, 2, logs.FilterMessage("child exited abnormally").Len())
	assert.Equal(t, 1, logs.FilterMessage("child restarted").Len())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var spawns atomic.Int32
	ref := startSupervisor(t, NewConfig(
		NewChildSpec("w", counted(&spawns, firstThen(crashAfter(10*time.Millisecond), idle))),
		NewChildSpec("idle", Worker(idle)),
	).SetName("metered").AddEventHandler(metrics.Handle))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.restarts.WithLabelValues("metered", "w")) == 1
	}, waitFor, tick)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.running.WithLabelValues("metered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.exits.WithLabelValues("metered", "w", sysmsg.Error)))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, ref.Shutdown(ctx))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.running.WithLabelValues("metered")))
}
