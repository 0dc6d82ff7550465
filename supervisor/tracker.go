package supervisor

import (
	"time"

	"github.com/benbjohnson/clock"
)

// RestartBudget limits how often a single child may be restarted.
type RestartBudget struct {
	// MaxRestarts is the number of restarts allowed within MaxWindow. Zero denies every restart.
	MaxRestarts uint
	MaxWindow   time.Duration
	// ResetAfter forgives all recorded restarts once this long has passed since the last one.
	// Zero disables it.
	ResetAfter time.Duration
}

// RestartTracker keeps the restart timestamps of one child.
type RestartTracker struct {
	clock    clock.Clock
	restarts []time.Time
	last     time.Time
}

func NewRestartTracker(clk clock.Clock) *RestartTracker {
	if clk == nil {
		clk = clock.New()
	}
	return &RestartTracker{clock: clk}
}

// RecordRestart counts a restart against budget. It returns false, recording nothing, when the
// restarts already made within the trailing window reach MaxRestarts.
func (t *RestartTracker) RecordRestart(budget RestartBudget) bool {
	now := t.clock.Now()
	t.prune(now, budget.MaxWindow)
	if uint(len(t.restarts)) >= budget.MaxRestarts {
		return false
	}
	t.restarts = append(t.restarts, now)
	t.last = now
	return true
}

// MaybeReset clears the tracker if nothing was restarted for longer than budget.ResetAfter.
func (t *RestartTracker) MaybeReset(budget RestartBudget) {
	if budget.ResetAfter <= 0 || t.last.IsZero() {
		return
	}
	if t.clock.Since(t.last) > budget.ResetAfter {
		t.restarts = nil
		t.last = time.Time{}
	}
}

// Restarts returns how many restarts currently count against the budget.
func (t *RestartTracker) Restarts(budget RestartBudget) int {
	t.prune(t.clock.Now(), budget.MaxWindow)
	return len(t.restarts)
}

func (t *RestartTracker) prune(now time.Time, window time.Duration) {
	start := now.Add(-window)
	i := 0
	for i < len(t.restarts) && !t.restarts[i].After(start) {
		i++
	}
	t.restarts = t.restarts[i:]
}
