package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"

	"github.com/nexora-ai/agentcore/internal/config"
	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/memory"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/telemetry"
	"github.com/nexora-ai/agentcore/internal/toolkit"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		system     string
		session    string
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run one ReAct episode and print the event stream and final answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if session == "" {
				session = "cli:" + uuid.NewString()
			}
			return runEpisode(cmd.Context(), cfg, session, system, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (defaults built in)")
	cmd.Flags().StringVarP(&system, "system", "s", "You can call the `add` tool to add two integers.", "System instruction for the episode")
	cmd.Flags().StringVar(&session, "session", "", "Session id to run under (default: a fresh cli:<uuid> session)")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the demo's registered local tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := toolkit.NewLocalRegistry(0, slog.Default())
			if err := registerDemoTools(registry); err != nil {
				return err
			}
			for _, d := range registry.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name, d.Description)
			}
			return nil
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runEpisode(parent context.Context, cfg config.Config, sessionID, system, query string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Logging)

	mem, err := buildMemory(ctx, cfg.Memory)
	if err != nil {
		return err
	}
	ev, err := buildEvents(ctx, cfg.Events)
	if err != nil {
		return err
	}
	client, err := buildLLMClient(cfg.Model)
	if err != nil {
		return err
	}

	registry := toolkit.NewLocalRegistry(0, logger)
	if err := registerDemoTools(registry); err != nil {
		return err
	}

	tracer, shutdownTracer := telemetry.NewTracer(cfg.TraceConfig())
	defer func() { _ = shutdownTracer(context.Background()) }()

	engine := react.NewEngine(toolkit.NewResolver(registry, nil), mem, ev, client, logger)
	engine.Tracer = tracer

	stream, cancelStream, err := ev.Stream(ctx, sessionID)
	if err != nil {
		return err
	}
	defer cancelStream()
	go func() {
		for event := range stream {
			fmt.Printf("[event] %-24s %s\n", event.Type, describePayload(event.Payload))
		}
	}()

	out, err := engine.Run(ctx, react.Input{
		SessionID:         sessionID,
		AgentName:         "cli",
		UserQuery:         query,
		SystemInstruction: system,
		ModelConfig:       cfg.LLMModelConfig(),
		Limits:            cfg.ReactLimits(),
	})
	if err != nil {
		return fmt.Errorf("episode ended with status %s: %w", out.Status, err)
	}

	fmt.Printf("\nfinal answer (%d steps, %d tokens):\n%s\n", out.Steps, out.TokensUsed, out.FinalAnswer)
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func buildMemory(ctx context.Context, cfg config.BackendConfig) (memory.Router, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := memory.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		store, err := memory.NewPostgresStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.NewInProcessStore(), nil
	}
}

func buildEvents(ctx context.Context, cfg config.BackendConfig) (events.Router, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		backend, err := events.NewPostgresBackend(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := backend.Migrate(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return events.NewMemoryBackend(), nil
	}
}

func buildLLMClient(cfg config.ModelConfig) (llm.Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIClient(apiKey), nil
	default:
		return llm.NewAnthropicClient(apiKey), nil
	}
}

// registerDemoTools installs the demo's one local tool: integer addition.
func registerDemoTools(registry *toolkit.LocalRegistry) error {
	schema, err := compileSchema(`{
		"type": "object",
		"properties": {
			"a": {"type": "integer"},
			"b": {"type": "integer"}
		},
		"required": ["a", "b"]
	}`)
	if err != nil {
		return err
	}
	return registry.Register(toolkit.Descriptor{
		Name:        "add",
		Description: "Add two integers and return their sum.",
		Schema:      schema,
	}, func(ctx context.Context, args json.RawMessage) (string, error) {
		var in struct {
			A int `json:"a"`
			B int `json:"b"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", in.A+in.B), nil
	})
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader([]byte(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func describePayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
