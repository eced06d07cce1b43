package toolkit

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RemoteToolInfo is one tool advertised by a RemoteProvider, as returned by
// its tool listing.
type RemoteToolInfo struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
}

// RemoteProvider is the abstract capability consumed by the facade.
// Transport, handshake, authentication, and session setup are the
// provider's concern; the facade assumes an already-established
// connection.
type RemoteProvider struct {
	ID        string
	ListTools func(ctx context.Context) ([]RemoteToolInfo, error)
	CallTool  func(ctx context.Context, name string, arguments json.RawMessage) (ok bool, content string, errMsg string)
}

type remoteEntry struct {
	descriptor Descriptor
}

// RemoteFacade presents one or more RemoteProviders as a single tool
// namespace, disambiguating colliding tool names deterministically.
type RemoteFacade struct {
	mu        sync.RWMutex
	providers map[string]RemoteProvider
	byName    map[string]remoteEntry
}

// NewRemoteFacade constructs an empty facade. Providers are added with
// AddProvider before Discover is called.
func NewRemoteFacade() *RemoteFacade {
	return &RemoteFacade{
		providers: make(map[string]RemoteProvider),
		byName:    make(map[string]remoteEntry),
	}
}

// AddProvider registers a remote provider to be included in the next
// Discover call.
func (f *RemoteFacade) AddProvider(p RemoteProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.ID] = p
}

// Discover asks every configured provider for its tool list and rebuilds
// the public-name -> route map, suffixing colliding names deterministically
// by a short hash of the provider id.
func (f *RemoteFacade) Discover(ctx context.Context) error {
	f.mu.RLock()
	providers := make([]RemoteProvider, 0, len(f.providers))
	for _, p := range f.providers {
		providers = append(providers, p)
	}
	f.mu.RUnlock()
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })

	seen := make(map[string]bool)
	byName := make(map[string]remoteEntry)

	for _, p := range providers {
		tools, err := p.ListTools(ctx)
		if err != nil {
			return NewError(ProviderError, fmt.Sprintf("provider %q: list_tools failed", p.ID)).WithCause(err)
		}
		for _, t := range tools {
			schema, err := compileRemoteSchema(t.ParametersSchema)
			if err != nil {
				return NewError(ProviderError, fmt.Sprintf("provider %q tool %q: invalid schema", p.ID, t.Name)).WithCause(err)
			}
			public := t.Name
			if seen[public] {
				public = suffixWithHash(t.Name, p.ID)
			}
			seen[public] = true
			byName[public] = remoteEntry{descriptor: Descriptor{
				Name:         public,
				Description:  t.Description,
				Schema:       schema,
				ProviderKind: ProviderRemote,
				Route:        RouteInfo{ProviderID: p.ID, RemoteName: t.Name},
			}}
		}
	}

	f.mu.Lock()
	f.byName = byName
	f.mu.Unlock()
	return nil
}

// List returns the discovered descriptors.
func (f *RemoteFacade) List() []Descriptor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Descriptor, 0, len(f.byName))
	for _, e := range f.byName {
		out = append(out, e.descriptor)
	}
	return out
}

// Lookup returns the descriptor for a public tool name, if discovered.
func (f *RemoteFacade) Lookup(name string) (Descriptor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.byName[name]
	return e.descriptor, ok
}

// Execute validates arguments against the cached schema, invokes the owning
// provider, and wraps the transport-level result as a normalized envelope.
// The facade does not retry transport failures itself; retry policy
// belongs to the caller.
func (f *RemoteFacade) Execute(ctx context.Context, call Call, timeout time.Duration) Result {
	start := time.Now()
	f.mu.RLock()
	entry, ok := f.byName[call.Name]
	provider, hasProvider := f.providers[entry.descriptor.Route.ProviderID]
	f.mu.RUnlock()

	if !ok {
		return Result{CallID: call.ID, OK: false, ErrorKind: UnknownTool, Content: fmt.Sprintf("tool %q is not discovered", call.Name), ProviderKind: ProviderRemote}
	}
	if err := validateArguments(entry.descriptor.Schema, call.Arguments); err != nil {
		return Result{CallID: call.ID, OK: false, ErrorKind: BadArguments, Content: err.Error(), ProviderKind: ProviderRemote}
	}
	if !hasProvider {
		return Result{CallID: call.ID, OK: false, ErrorKind: ProviderError, Content: fmt.Sprintf("provider %q is no longer registered", entry.descriptor.Route.ProviderID), ProviderKind: ProviderRemote}
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		ok      bool
		content string
		errMsg  string
	}
	done := make(chan outcome, 1)
	go func() {
		ok, content, errMsg := provider.CallTool(execCtx, entry.descriptor.Route.RemoteName, call.Arguments)
		done <- outcome{ok: ok, content: content, errMsg: errMsg}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start).Milliseconds()
		if !out.ok {
			kind := ToolFailure
			if out.errMsg == "" {
				out.errMsg = "remote tool reported failure"
			}
			return Result{CallID: call.ID, OK: false, ErrorKind: kind, Content: out.errMsg, ProviderKind: ProviderRemote, DurationMS: elapsed}
		}
		return Result{CallID: call.ID, OK: true, Content: out.content, ProviderKind: ProviderRemote, DurationMS: elapsed}
	case <-execCtx.Done():
		elapsed := time.Since(start).Milliseconds()
		if ctx.Err() != nil {
			return Result{CallID: call.ID, OK: false, ErrorKind: Cancelled, Content: ctx.Err().Error(), ProviderKind: ProviderRemote, DurationMS: elapsed}
		}
		return Result{CallID: call.ID, OK: false, ErrorKind: Timeout, Content: fmt.Sprintf("tool %q exceeded its %s timeout", call.Name, timeout), ProviderKind: ProviderRemote, DurationMS: elapsed}
	}
}

func compileRemoteSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// suffixWithHash appends an 8-hex-char sha1 suffix of providerID to name,
// keeping collision handling deterministic across rediscoveries.
func suffixWithHash(name, providerID string) string {
	sum := sha1.Sum([]byte(providerID))
	return fmt.Sprintf("%s_%s", name, hex.EncodeToString(sum[:])[:8])
}
