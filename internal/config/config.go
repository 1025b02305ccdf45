// Package config provides configuration loading for orchestd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables. Defaults cover every field so an empty
// configuration is valid.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/fyrsmithlabs/orchestd/internal/registry"
)

// Config holds the complete orchestd configuration.
type Config struct {
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	State         StateConfig         `koanf:"state"`
	Workflow      WorkflowConfig      `koanf:"workflow"`
	Invoker       InvokerConfig       `koanf:"invoker"`
	Breaker       BreakerConfig       `koanf:"breaker"`
	Graph         GraphConfig         `koanf:"graph"`
	Executors     []ExecutorConfig    `koanf:"executors"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// StateConfig holds workflow state persistence configuration.
type StateConfig struct {
	Path       string `koanf:"path"`
	MaxBackups int    `koanf:"max_backups"`
}

// WorkflowConfig holds the phase sequence for features.
type WorkflowConfig struct {
	Phases    []string `koanf:"phases"`
	Skippable []string `koanf:"skippable"`
}

// InvokerConfig holds retry and rate-limit settings.
type InvokerConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
	BackoffBase    time.Duration `koanf:"backoff_base"`
	BackoffMax     time.Duration `koanf:"backoff_max"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
}

// BreakerConfig holds circuit breaker settings applied to every executor.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

// GraphConfig holds task graph execution settings.
type GraphConfig struct {
	ConcurrencyLimit int  `koanf:"concurrency_limit"`
	FailFast         bool `koanf:"fail_fast"`
}

// ExecutorConfig declares one executor backend.
type ExecutorConfig struct {
	ID            string   `koanf:"id"`
	Kind          string   `koanf:"kind"` // remote or cli
	Capabilities  []string `koanf:"capabilities"`
	CostWeight    float64  `koanf:"cost_weight"`
	MaxConcurrent int      `koanf:"max_concurrent"`

	// CLI executors.
	Command        string   `koanf:"command"`
	Args           []string `koanf:"args"`
	PromptViaStdin bool     `koanf:"prompt_via_stdin"`
	WorkingDir     string   `koanf:"working_dir"`

	// Remote executors. The API key is read from APIKeyEnv, never stored
	// in the config file.
	Model     string `koanf:"model"`
	APIKeyEnv string `koanf:"api_key_env"`
	MaxTokens int    `koanf:"max_tokens"`
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "orchestd"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaultStatePath()
	}
	if cfg.State.MaxBackups <= 0 {
		cfg.State.MaxBackups = 10
	}
	if len(cfg.Workflow.Phases) == 0 {
		cfg.Workflow.Phases = []string{"define", "decompose", "design", "implement", "test", "review"}
		if cfg.Workflow.Skippable == nil {
			cfg.Workflow.Skippable = []string{"decompose", "design"}
		}
	}
	if cfg.Invoker.MaxAttempts <= 0 {
		cfg.Invoker.MaxAttempts = 3
	}
	if cfg.Invoker.AttemptTimeout <= 0 {
		cfg.Invoker.AttemptTimeout = 2 * time.Minute
	}
	if cfg.Invoker.BackoffBase <= 0 {
		cfg.Invoker.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Invoker.BackoffMax <= 0 {
		cfg.Invoker.BackoffMax = 30 * time.Second
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = 60 * time.Second
	}
	if cfg.Graph.ConcurrencyLimit <= 0 {
		cfg.Graph.ConcurrencyLimit = runtime.NumCPU()
	}
	for i := range cfg.Executors {
		if cfg.Executors[i].MaxConcurrent <= 0 {
			cfg.Executors[i].MaxConcurrent = 1
		}
	}
}

// Validate checks the configuration for errors that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	phases := make(map[string]bool, len(c.Workflow.Phases))
	for _, p := range c.Workflow.Phases {
		if p == "" {
			return fmt.Errorf("workflow.phases must not contain empty names")
		}
		if phases[p] {
			return fmt.Errorf("workflow.phases contains duplicate phase %q", p)
		}
		phases[p] = true
	}
	for _, p := range c.Workflow.Skippable {
		if !phases[p] {
			return fmt.Errorf("workflow.skippable names unknown phase %q", p)
		}
	}

	ids := make(map[string]bool, len(c.Executors))
	for _, e := range c.Executors {
		if e.ID == "" {
			return fmt.Errorf("executors[].id is required")
		}
		if ids[e.ID] {
			return fmt.Errorf("duplicate executor id %q", e.ID)
		}
		ids[e.ID] = true

		kind := registry.Kind(e.Kind)
		if !kind.Valid() {
			return fmt.Errorf("executor %s: kind must be remote or cli, got %q", e.ID, e.Kind)
		}
		if len(e.Capabilities) == 0 {
			return fmt.Errorf("executor %s: at least one capability is required", e.ID)
		}
		if kind == registry.KindCLI && e.Command == "" {
			return fmt.Errorf("executor %s: command is required for cli executors", e.ID)
		}
		if kind == registry.KindRemote && e.Model == "" {
			return fmt.Errorf("executor %s: model is required for remote executors", e.ID)
		}
	}

	return nil
}
