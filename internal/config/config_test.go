package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  provider: openai
  model: gpt-4o
limits:
  max_steps: 5
memory:
  backend: sqlite
  path: /tmp/agentcore.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.Model != "gpt-4o" {
		t.Errorf("model section not applied: %+v", cfg.Model)
	}
	if cfg.Limits.MaxSteps != 5 {
		t.Errorf("limits.max_steps not applied: %d", cfg.Limits.MaxSteps)
	}
	// Unset fields keep their defaults.
	if cfg.Limits.RequestLimit != Default().Limits.RequestLimit {
		t.Errorf("unset request_limit should keep default, got %d", cfg.Limits.RequestLimit)
	}
	if cfg.Events.Backend != BackendInMemory {
		t.Errorf("unset events backend should default to in_memory, got %q", cfg.Events.Backend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "memory:\n  backend: etcd\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	path := writeConfig(t, "events:\n  backend: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for postgres without dsn")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestReactLimitsConversion(t *testing.T) {
	cfg := Default()
	cfg.Limits.ToolCallTimeoutSecs = 7
	limits := cfg.ReactLimits()
	if limits.ToolCallTimeout != 7*time.Second {
		t.Errorf("expected 7s timeout, got %v", limits.ToolCallTimeout)
	}
	if limits.MaxSteps != cfg.Limits.MaxSteps {
		t.Errorf("max steps not carried over")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}
