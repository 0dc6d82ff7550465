package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"

	"github.com/hedisam/supervise/actor"
)

// RetryStrategy bounds the respawn of a child the budget allowed to restart.
// The n-th wait is BaseDelay * Multiplier^(n-1), capped at MaxDelay, with no jitter.
type RetryStrategy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	// MaxDelay caps the wait between attempts. Zero means BaseDelay.
	MaxDelay time.Duration
	// Multiplier of 1 or 0 keeps the delay fixed at BaseDelay.
	Multiplier float64
}

func (s RetryStrategy) validate() error {
	if s.MaxAttempts == 0 {
		return fmt.Errorf("invalid retry max attempts: %d", s.MaxAttempts)
	} else if s.BaseDelay < 0 {
		return fmt.Errorf("invalid retry base delay: %v", s.BaseDelay)
	} else if s.MaxDelay != 0 && s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("retry max delay %v is less than base delay %v", s.MaxDelay, s.BaseDelay)
	} else if s.Multiplier != 0 && s.Multiplier < 1 {
		return fmt.Errorf("invalid retry multiplier: %v", s.Multiplier)
	}
	return nil
}

func (s RetryStrategy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          s.Multiplier,
		MaxInterval:         s.MaxDelay,
	}
	if b.Multiplier == 0 {
		b.Multiplier = 1
	}
	if b.MaxInterval == 0 {
		b.MaxInterval = s.BaseDelay
	}
	b.Reset()
	return b
}

// SpawnWithRetry calls op up to strategy.MaxAttempts times, waiting between failed attempts.
// It returns the first pid op produces, or false once attempts run out or ctx is done.
// A panicking op counts as a failed attempt.
func SpawnWithRetry(ctx context.Context, strategy RetryStrategy, clk clock.Clock, op func(context.Context) (*actor.PID, error)) (*actor.PID, bool) {
	if clk == nil {
		clk = clock.New()
	}
	b := strategy.backOff()
	for attempt := uint(1); attempt <= strategy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}
		if child, err := try(ctx, op); err == nil && child != nil {
			return child, true
		}
		if attempt == strategy.MaxAttempts {
			break
		}

		timer := clk.Timer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
	}
	return nil, false
}

func try(ctx context.Context, op func(context.Context) (*actor.PID, error)) (child *actor.PID, err error) {
	defer func() {
		if r := recover(); r != nil {
			child, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx)
}
