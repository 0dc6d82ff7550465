package supervisor

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/xid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultMaxRestarts uint = 3
	defaultMaxWindow        = 5 * time.Second

	defaultMaxAttempts uint = 3
	defaultBaseDelay        = 100 * time.Millisecond
	defaultMaxDelay         = 2 * time.Second
	defaultMultiplier       = 2.0
)

type Config struct {
	// Name identifies the supervisor in logs, events and the named registry
	Name          string
	Children      []ChildSpec
	Budget        RestartBudget
	Retry         RetryStrategy
	Logger        *zap.Logger
	Clock         clock.Clock
	EventHandlers []EventHandler
}

func DefaultBudget() RestartBudget {
	return RestartBudget{MaxRestarts: defaultMaxRestarts, MaxWindow: defaultMaxWindow}
}

func DefaultRetry() RetryStrategy {
	return RetryStrategy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Multiplier:  defaultMultiplier,
	}
}

// NewConfig returns a config with a random name, the default budget and retry strategy.
func NewConfig(children ...ChildSpec) Config {
	return Config{
		Name:     xid.New().String(),
		Children: children,
		Budget:   DefaultBudget(),
		Retry:    DefaultRetry(),
		Logger:   zap.NewNop(),
		Clock:    clock.New(),
	}
}

func (cfg Config) SetName(name string) Config {
	cfg.Name = name
	return cfg
}

func (cfg Config) SetBudget(budget RestartBudget) Config {
	cfg.Budget = budget
	return cfg
}

func (cfg Config) SetRetry(retry RetryStrategy) Config {
	cfg.Retry = retry
	return cfg
}

func (cfg Config) SetLogger(logger *zap.Logger) Config {
	cfg.Logger = logger
	return cfg
}

func (cfg Config) SetClock(clk clock.Clock) Config {
	cfg.Clock = clk
	return cfg
}

func (cfg Config) AddChild(spec ChildSpec) Config {
	cfg.Children = append(cfg.Children[:len(cfg.Children):len(cfg.Children)], spec)
	return cfg
}

func (cfg Config) AddEventHandler(handler EventHandler) Config {
	cfg.EventHandlers = append(cfg.EventHandlers[:len(cfg.EventHandlers):len(cfg.EventHandlers)], handler)
	return cfg
}

// Validate reports every problem found in the config at once.
func (cfg Config) Validate() error {
	var err error
	if cfg.Budget.MaxWindow <= 0 {
		err = multierr.Append(err, fmt.Errorf("invalid restart window: %v", cfg.Budget.MaxWindow))
	}
	if cfg.Budget.ResetAfter < 0 {
		err = multierr.Append(err, fmt.Errorf("invalid reset after: %v", cfg.Budget.ResetAfter))
	}
	err = multierr.Append(err, cfg.Retry.validate())

	seen := make(map[string]struct{}, len(cfg.Children))
	for _, spec := range cfg.Children {
		if e := spec.validate(); e != nil {
			err = multierr.Append(err, e)
			continue
		}
		if _, duplicate := seen[spec.ID]; duplicate {
			err = multierr.Append(err, fmt.Errorf("duplicate childspec id %s", spec.ID))
		}
		seen[spec.ID] = struct{}{}
	}
	return err
}

func (cfg Config) withDefaults() Config {
	if cfg.Name == "" {
		cfg.Name = xid.New().String()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	cfg.Children = append([]ChildSpec(nil), cfg.Children...)
	return cfg
}
