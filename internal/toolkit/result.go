package toolkit

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ProviderKind distinguishes where a tool call was ultimately dispatched.
type ProviderKind string

const (
	ProviderLocal  ProviderKind = "local"
	ProviderRemote ProviderKind = "remote"
)

// Descriptor describes one registered or discovered tool.
type Descriptor struct {
	Name         string
	Description  string
	Schema       *jsonschema.Schema
	ProviderKind ProviderKind

	// Route carries provider-specific routing data. For remote tools this
	// is the owning provider id and the provider's own (unsuffixed) tool
	// name; local tools leave it zero.
	Route RouteInfo
}

// RouteInfo is provider-specific dispatch data attached to a Descriptor.
type RouteInfo struct {
	ProviderID string
	RemoteName string
}

// Call is a single tool invocation request produced by the react parser.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the normalized envelope returned by the resolver regardless of
// which provider handled the call.
type Result struct {
	CallID       string
	OK           bool
	Content      string
	ErrorKind    ErrorKind
	DurationMS   int64
	ProviderKind ProviderKind
}
