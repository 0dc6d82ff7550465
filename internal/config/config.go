// Package config loads the supervise CLI configuration from a YAML file and SUPERVISE_* env vars.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hedisam/supervise/internal/demo"
	"github.com/hedisam/supervise/supervisor"
)

const EnvPrefix = "SUPERVISE"

type Config struct {
	Name     string  `mapstructure:"name"`
	Budget   Budget  `mapstructure:"budget"`
	Retry    Retry   `mapstructure:"retry"`
	Log      Log     `mapstructure:"log"`
	HTTP     HTTP    `mapstructure:"http"`
	Children []Child `mapstructure:"children"`
}

type Budget struct {
	MaxRestarts uint          `mapstructure:"max_restarts"`
	MaxWindow   time.Duration `mapstructure:"max_window"`
	ResetAfter  time.Duration `mapstructure:"reset_after"`
}

type Retry struct {
	MaxAttempts uint          `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type HTTP struct {
	// Addr of the status server, empty disables it
	Addr string `mapstructure:"addr"`
}

// Child is a demo worker to supervise.
type Child struct {
	ID       string        `mapstructure:"id"`
	Kind     string        `mapstructure:"kind"`
	Restart  string        `mapstructure:"restart"`
	Interval time.Duration `mapstructure:"interval"`
	// Shutdown is left nil when unset, 0 means don't wait for the child to exit
	Shutdown *time.Duration `mapstructure:"shutdown"`
}

func (c Child) shutdownTimeout() time.Duration {
	if c.Shutdown == nil {
		return supervisor.DefaultShutdown
	}
	return *c.Shutdown
}

func setDefaults(v *viper.Viper) {
	budget := supervisor.DefaultBudget()
	retry := supervisor.DefaultRetry()

	v.SetDefault("name", "supervise")
	v.SetDefault("budget.max_restarts", budget.MaxRestarts)
	v.SetDefault("budget.max_window", budget.MaxWindow)
	v.SetDefault("budget.reset_after", budget.ResetAfter)
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.multiplier", retry.Multiplier)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("http.addr", ":9090")
	v.SetDefault("children", []map[string]interface{}{
		{"id": "steady", "kind": demo.KindSteady, "restart": "permanent", "interval": "1s"},
		{"id": "flapping", "kind": demo.KindFlapping, "restart": "transient", "interval": "3s"},
		{"id": "oneshot", "kind": demo.KindOneShot, "restart": "temporary", "interval": "2s"},
	})
}

// Load reads path, if given, on top of the defaults. Env vars such as SUPERVISE_BUDGET_MAX_RESTARTS
// override both.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	for i := range cfg.Children {
		if cfg.Children[i].Restart == "" {
			cfg.Children[i].Restart = supervisor.Permanent.String()
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("name could not be empty"))
	}
	if len(c.Children) == 0 {
		err = multierr.Append(err, errors.New("no children configured"))
	}
	if _, e := zap.ParseAtomicLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("log level: %w", e))
	}
	for _, child := range c.Children {
		if _, e := supervisor.ParseRestartPolicy(child.Restart); e != nil {
			err = multierr.Append(err, fmt.Errorf("child %s: %w", child.ID, e))
		}
		if _, e := demo.Spawner(child.ID, child.Kind, child.Interval, nil); e != nil {
			err = multierr.Append(err, e)
		}
	}
	if e := c.Supervisor(nil).Validate(); e != nil {
		err = multierr.Append(err, e)
	}
	return err
}

// Supervisor builds the supervisor config. Children that don't validate are left out; Validate
// reports them.
func (c Config) Supervisor(logger *zap.Logger) supervisor.Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := supervisor.NewConfig().
		SetName(c.Name).
		SetLogger(logger).
		SetBudget(supervisor.RestartBudget{
			MaxRestarts: c.Budget.MaxRestarts,
			MaxWindow:   c.Budget.MaxWindow,
			ResetAfter:  c.Budget.ResetAfter,
		}).
		SetRetry(supervisor.RetryStrategy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Multiplier:  c.Retry.Multiplier,
		})

	for _, child := range c.Children {
		restart, err := supervisor.ParseRestartPolicy(child.Restart)
		if err != nil {
			continue
		}
		spawner, err := demo.Spawner(child.ID, child.Kind, child.Interval, logger)
		if err != nil {
			continue
		}
		cfg = cfg.AddChild(supervisor.NewChildSpec(child.ID, spawner).
			SetRestart(restart).
			SetShutdown(child.shutdownTimeout()))
	}
	return cfg
}

// Logger builds a zap logger from the log section.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

type yamlChild struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Restart  string `yaml:"restart"`
	Interval string `yaml:"interval"`
	Shutdown string `yaml:"shutdown"`
}

// YAML renders the effective config with durations in their string form.
func (c Config) YAML() ([]byte, error) {
	children := make([]yamlChild, 0, len(c.Children))
	for _, child := range c.Children {
		children = append(children, yamlChild{
			ID:       child.ID,
			Kind:     child.Kind,
			Restart:  child.Restart,
			Interval: child.Interval.String(),
			Shutdown: child.shutdownTimeout().String(),
		})
	}

	doc := map[string]interface{}{
		"name": c.Name,
		"budget": map[string]interface{}{
			"max_restarts": c.Budget.MaxRestarts,
			"max_window":   c.Budget.MaxWindow.String(),
			"reset_after":  c.Budget.ResetAfter.String(),
		},
		"retry": map[string]interface{}{
			"max_attempts": c.Retry.MaxAttempts,
			"base_delay":   c.Retry.BaseDelay.String(),
			"max_delay":    c.Retry.MaxDelay.String(),
			"multiplier":   c.Retry.Multiplier,
		},
		"log": map[string]interface{}{
			"level":       c.Log.Level,
			"development": c.Log.Development,
		},
		"http":     map[string]interface{}{"addr": c.HTTP.Addr},
		"children": children,
	}
	return yaml.Marshal(doc)
}
