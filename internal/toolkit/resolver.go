package toolkit

import (
	"context"
	"fmt"
	"time"
)

// Resolver is the single entry point for all tool calls used by the react
// engine. It is stateless beyond the two catalogs it wraps: given a
// name it probes the local registry first, then the remote facade, and
// returns UnknownTool if neither knows it. Exactly one provider is invoked
// per call and the returned envelope is normalized regardless of provider.
type Resolver struct {
	Local  *LocalRegistry
	Remote *RemoteFacade
}

// NewResolver builds a Resolver over the given catalogs. Either may be nil,
// in which case that probe is skipped.
func NewResolver(local *LocalRegistry, remote *RemoteFacade) *Resolver {
	return &Resolver{Local: local, Remote: remote}
}

// Execute dispatches call to whichever provider owns its name.
func (r *Resolver) Execute(ctx context.Context, call Call, timeout time.Duration) Result {
	if r.Local != nil {
		if _, _, ok := r.Local.Lookup(call.Name); ok {
			return r.Local.Execute(ctx, call, timeout)
		}
	}
	if r.Remote != nil {
		if _, ok := r.Remote.Lookup(call.Name); ok {
			return r.Remote.Execute(ctx, call, timeout)
		}
	}
	return Result{
		CallID:    call.ID,
		OK:        false,
		ErrorKind: UnknownTool,
		Content:   fmt.Sprintf("no local or remote provider knows tool %q", call.Name),
	}
}
