package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func mustSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader([]byte(raw))); err != nil {
		t.Fatalf("add resource: %v", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return s
}

func addTool(t *testing.T, reg *LocalRegistry, name string, fn ToolFunc) {
	t.Helper()
	schema := mustSchema(t, `{"type":"object","properties":{"a":{"type":"integer"},"b":{"type":"integer"}},"required":["a","b"]}`)
	if err := reg.Register(Descriptor{Name: name, Description: "add two ints", Schema: schema}, fn); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestLocalRegistry_ExecuteSuccess(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	addTool(t, reg, "add", func(ctx context.Context, args json.RawMessage) (string, error) {
		var in struct{ A, B int }
		_ = json.Unmarshal(args, &in)
		return "5", nil
	})

	res := reg.Execute(context.Background(), Call{ID: "1", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)}, time.Second)
	if !res.OK || res.Content != "5" {
		t.Fatalf("expected ok=true content=5, got %+v", res)
	}
}

func TestLocalRegistry_BadArguments(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	addTool(t, reg, "add", func(ctx context.Context, args json.RawMessage) (string, error) {
		return "5", nil
	})

	res := reg.Execute(context.Background(), Call{ID: "1", Name: "add", Arguments: json.RawMessage(`{"a":"two"}`)}, time.Second)
	if res.OK || res.ErrorKind != BadArguments {
		t.Fatalf("expected BadArguments, got %+v", res)
	}
}

func TestLocalRegistry_UnknownTool(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	res := reg.Execute(context.Background(), Call{ID: "1", Name: "missing", Arguments: json.RawMessage(`{}`)}, time.Second)
	if res.OK || res.ErrorKind != UnknownTool {
		t.Fatalf("expected UnknownTool, got %+v", res)
	}
}

func TestLocalRegistry_Timeout(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	addTool(t, reg, "slow", func(ctx context.Context, args json.RawMessage) (string, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	res := reg.Execute(context.Background(), Call{ID: "1", Name: "slow", Arguments: json.RawMessage(`{"a":1,"b":1}`)}, 20*time.Millisecond)
	if res.OK || res.ErrorKind != Timeout {
		t.Fatalf("expected Timeout, got %+v", res)
	}
}

func TestLocalRegistry_ToolFailure(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	addTool(t, reg, "fail", func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", errors.New("boom")
	})

	res := reg.Execute(context.Background(), Call{ID: "1", Name: "fail", Arguments: json.RawMessage(`{"a":1,"b":1}`)}, time.Second)
	if res.OK || res.ErrorKind != ToolFailure {
		t.Fatalf("expected ToolFailure, got %+v", res)
	}
}

func TestResolver_ProbesLocalThenRemote(t *testing.T) {
	reg := NewLocalRegistry(0, nil)
	addTool(t, reg, "add", func(ctx context.Context, args json.RawMessage) (string, error) {
		return "5", nil
	})
	facade := NewRemoteFacade()

	resolver := NewResolver(reg, facade)
	res := resolver.Execute(context.Background(), Call{ID: "1", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)}, time.Second)
	if !res.OK || res.ProviderKind != ProviderLocal {
		t.Fatalf("expected local dispatch, got %+v", res)
	}

	res = resolver.Execute(context.Background(), Call{ID: "2", Name: "nonexistent", Arguments: json.RawMessage(`{}`)}, time.Second)
	if res.OK || res.ErrorKind != UnknownTool {
		t.Fatalf("expected UnknownTool, got %+v", res)
	}
}

func TestRemoteFacade_DiscoverDisambiguatesCollisions(t *testing.T) {
	facade := NewRemoteFacade()
	schema := json.RawMessage(`{"type":"object"}`)

	facade.AddProvider(RemoteProvider{
		ID: "providerA",
		ListTools: func(ctx context.Context) ([]RemoteToolInfo, error) {
			return []RemoteToolInfo{{Name: "search", ParametersSchema: schema}}, nil
		},
		CallTool: func(ctx context.Context, name string, arguments json.RawMessage) (bool, string, string) {
			return true, "A", ""
		},
	})
	facade.AddProvider(RemoteProvider{
		ID: "providerB",
		ListTools: func(ctx context.Context) ([]RemoteToolInfo, error) {
			return []RemoteToolInfo{{Name: "search", ParametersSchema: schema}}, nil
		},
		CallTool: func(ctx context.Context, name string, arguments json.RawMessage) (bool, string, string) {
			return true, "B", ""
		},
	})

	if err := facade.Discover(context.Background()); err != nil {
		t.Fatalf("discover: %v", err)
	}

	descriptors := facade.List()
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 disambiguated tools, got %d: %+v", len(descriptors), descriptors)
	}
	names := map[string]bool{}
	for _, d := range descriptors {
		names[d.Name] = true
	}
	if !names["search"] {
		t.Fatalf("expected the first-seen name %q to remain unsuffixed, got %v", "search", names)
	}
}
