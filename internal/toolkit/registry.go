package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolFunc is an in-process tool callable. It may block; blocking
// callables run on the registry's worker pool so a slow tool cannot starve
// concurrently executing episodes.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

type localEntry struct {
	descriptor Descriptor
	fn         ToolFunc
}

// LocalRegistry is the in-process name -> callable tool catalog.
// Registration is allowed at runtime; readers always observe a complete
// descriptor, never a partial one, because entries are replaced atomically
// under the registry mutex.
type LocalRegistry struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	sem     chan struct{}
	logger  *slog.Logger
}

// DefaultMaxConcurrentLocalTools bounds the worker pool used to run
// blocking local tool callables.
const DefaultMaxConcurrentLocalTools = 8

// NewLocalRegistry creates an empty registry. maxConcurrent bounds the
// number of local tool callables that may run simultaneously; 0 selects
// DefaultMaxConcurrentLocalTools.
func NewLocalRegistry(maxConcurrent int, logger *slog.Logger) *LocalRegistry {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentLocalTools
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRegistry{
		entries: make(map[string]localEntry),
		sem:     make(chan struct{}, maxConcurrent),
		logger:  logger,
	}
}

// Register inserts a tool. A duplicate name overwrites the prior entry and
// logs a warning.
func (r *LocalRegistry) Register(descriptor Descriptor, fn ToolFunc) error {
	if descriptor.Name == "" {
		return fmt.Errorf("toolkit: descriptor name is required")
	}
	if descriptor.Schema == nil {
		return fmt.Errorf("toolkit: descriptor %q requires a parameters schema", descriptor.Name)
	}
	descriptor.ProviderKind = ProviderLocal

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[descriptor.Name]; exists {
		r.logger.Warn("toolkit: overwriting registered tool", "name", descriptor.Name)
	}
	r.entries[descriptor.Name] = localEntry{descriptor: descriptor, fn: fn}
	return nil
}

// Unregister removes a tool by name. Unregistering a name that is not
// present is a no-op.
func (r *LocalRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Lookup returns the descriptor and callable for name, if registered.
func (r *LocalRegistry) Lookup(name string) (Descriptor, ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return Descriptor{}, nil, false
	}
	return entry.descriptor, entry.fn, true
}

// List returns all registered descriptors in no particular order.
func (r *LocalRegistry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.descriptor)
	}
	return out
}

// Execute validates arguments against the tool's schema, then invokes the
// callable on the worker pool under the given timeout. It never returns a
// Go error: every outcome, whether success, bad arguments, timeout, or a
// panic or failure inside the callable, is reified into a Result envelope.
func (r *LocalRegistry) Execute(ctx context.Context, call Call, timeout time.Duration) Result {
	start := time.Now()
	descriptor, fn, ok := r.Lookup(call.Name)
	if !ok {
		return Result{CallID: call.ID, OK: false, ErrorKind: UnknownTool, Content: fmt.Sprintf("tool %q is not registered", call.Name), ProviderKind: ProviderLocal}
	}

	if err := validateArguments(descriptor.Schema, call.Arguments); err != nil {
		return Result{CallID: call.ID, OK: false, ErrorKind: BadArguments, Content: err.Error(), ProviderKind: ProviderLocal}
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return Result{CallID: call.ID, OK: false, ErrorKind: Cancelled, Content: ctx.Err().Error(), ProviderKind: ProviderLocal, DurationMS: time.Since(start).Milliseconds()}
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool %q panicked: %v", call.Name, rec)}
			}
		}()
		content, err := fn(execCtx, call.Arguments)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start).Milliseconds()
		if out.err != nil {
			return Result{CallID: call.ID, OK: false, ErrorKind: ToolFailure, Content: out.err.Error(), ProviderKind: ProviderLocal, DurationMS: elapsed}
		}
		return Result{CallID: call.ID, OK: true, Content: out.content, ProviderKind: ProviderLocal, DurationMS: elapsed}
	case <-execCtx.Done():
		elapsed := time.Since(start).Milliseconds()
		if ctx.Err() != nil {
			return Result{CallID: call.ID, OK: false, ErrorKind: Cancelled, Content: ctx.Err().Error(), ProviderKind: ProviderLocal, DurationMS: elapsed}
		}
		return Result{CallID: call.ID, OK: false, ErrorKind: Timeout, Content: fmt.Sprintf("tool %q exceeded its %s timeout", call.Name, timeout), ProviderKind: ProviderLocal, DurationMS: elapsed}
	}
}

func validateArguments(schema *jsonschema.Schema, args json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("arguments failed schema validation: %w", err)
	}
	return nil
}
