// Package config loads the file-based configuration surface of the agent
// core: per-call limits, model settings, backend selectors, and the
// ambient logging/telemetry knobs. Construction in code goes through the
// component constructors directly; this package is the one external-facing
// way to build that struct tree from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/telemetry"
)

// Backend selectors for the memory and event routers.
const (
	BackendInMemory = "in_memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the root of the file-loadable configuration tree.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Limits     LimitsConfig     `yaml:"limits"`
	Memory     BackendConfig    `yaml:"memory"`
	Events     BackendConfig    `yaml:"events"`
	Background BackgroundConfig `yaml:"background"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ModelConfig selects the LLM provider and sampling parameters.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKeyEnv   string  `yaml:"api_key_env"`
}

// LimitsConfig is the per-episode budget surface.
type LimitsConfig struct {
	MaxSteps            int `yaml:"max_steps"`
	RequestLimit        int `yaml:"request_limit"`
	TotalTokensLimit    int `yaml:"total_tokens_limit"`
	ToolCallTimeoutSecs int `yaml:"tool_call_timeout_seconds"`
	MaxContextTokens    int `yaml:"max_context_tokens"`
	ParseRetryBudget    int `yaml:"parse_retry_budget"`
}

// BackendConfig selects and connects one pluggable backend.
type BackendConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
	Path    string `yaml:"path"`
}

// BackgroundConfig supplies defaults for newly created background agents.
type BackgroundConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	MaxRetries        int `yaml:"max_retries"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the optional OTLP exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the configuration used when no file is supplied: the
// in-memory backends, the default episode limits, and no tracing.
func Default() Config {
	limits := react.DefaultLimits()
	return Config{
		Model: ModelConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Limits: LimitsConfig{
			MaxSteps:            limits.MaxSteps,
			RequestLimit:        limits.RequestLimit,
			TotalTokensLimit:    limits.TotalTokensLimit,
			ToolCallTimeoutSecs: int(limits.ToolCallTimeout / time.Second),
			MaxContextTokens:    limits.MaxContextTokens,
			ParseRetryBudget:    limits.ParseRetryBudget,
		},
		Memory:     BackendConfig{Backend: BackendInMemory},
		Events:     BackendConfig{Backend: BackendInMemory},
		Background: BackgroundConfig{IntervalSeconds: 300, MaxRetries: 2, RetryDelaySeconds: 10},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, overlays it on Default(), and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied by design
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the component constructors would
// otherwise fail on at first use.
func (c Config) Validate() error {
	switch c.Memory.Backend {
	case BackendInMemory:
	case BackendPostgres:
		if c.Memory.DSN == "" {
			return fmt.Errorf("config: memory.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Memory.Path == "" {
			return fmt.Errorf("config: memory.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown memory backend %q", c.Memory.Backend)
	}

	switch c.Events.Backend {
	case BackendInMemory:
	case BackendPostgres:
		if c.Events.DSN == "" {
			return fmt.Errorf("config: events.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown events backend %q", c.Events.Backend)
	}

	if c.Model.Provider != "anthropic" && c.Model.Provider != "openai" {
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	if c.Background.IntervalSeconds <= 0 {
		return fmt.Errorf("config: background.interval_seconds must be positive")
	}
	return nil
}

// ReactLimits converts the file-level limits to the engine's type.
func (c Config) ReactLimits() react.Limits {
	return react.Limits{
		MaxSteps:         c.Limits.MaxSteps,
		RequestLimit:     c.Limits.RequestLimit,
		TotalTokensLimit: c.Limits.TotalTokensLimit,
		ToolCallTimeout:  time.Duration(c.Limits.ToolCallTimeoutSecs) * time.Second,
		MaxContextTokens: c.Limits.MaxContextTokens,
		ParseRetryBudget: c.Limits.ParseRetryBudget,
	}
}

// LLMModelConfig converts the file-level model settings to the llm type.
func (c Config) LLMModelConfig() llm.ModelConfig {
	return llm.ModelConfig{
		Provider:    c.Model.Provider,
		Model:       c.Model.Model,
		Temperature: c.Model.Temperature,
		TopP:        c.Model.TopP,
		MaxTokens:   c.Model.MaxTokens,
	}
}

// TraceConfig converts the file-level tracing settings to the telemetry
// type; a disabled section yields a TraceConfig with only ServiceName set
// and no Endpoint, for which telemetry.NewTracer exports nothing.
func (c Config) TraceConfig() telemetry.TraceConfig {
	if !c.Tracing.Enabled {
		return telemetry.TraceConfig{ServiceName: c.Tracing.ServiceName}
	}
	return telemetry.TraceConfig{
		ServiceName:    c.Tracing.ServiceName,
		Environment:    c.Tracing.Environment,
		Endpoint:       c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SamplingRate,
		EnableInsecure: c.Tracing.Insecure,
	}
}
