// Package runtime defines the ports to the host agent environment: capability
// discovery, context composition, trigger dispatch, world/room lifecycle, and
// the correlation-id result registry. The pipeline depends only on these
// interfaces, never on a concrete host.
package runtime

import (
	"context"
	"encoding/json"

	"advisor/internal/types"
)

// Host is the agent environment the pipeline drives.
type Host interface {
	// Capabilities enumerates the invokable capabilities currently registered
	// with the host. Discovered fresh each run.
	Capabilities(ctx context.Context) ([]types.Capability, error)

	// ComposeContext resolves all registered context providers in one call and
	// returns provider name -> payload. Provider failures are absorbed by the
	// host; missing providers are simply absent from the map.
	ComposeContext(ctx context.Context) (map[string]json.RawMessage, error)

	// Dispatch sends a synthetic message carrying the trigger phrase and
	// correlation id into the given room, instructing the host to invoke
	// exactly the named capability, and waits for the invocation to finish.
	// The outcome is retrieved separately from the Registry by correlation id.
	Dispatch(ctx context.Context, correlationID, roomID, trigger, capability string) error

	// EnsureWorld idempotently creates the durable execution context for an
	// agent. Calling it with an existing id is a no-op.
	EnsureWorld(ctx context.Context, worldID, agentID, name string) error

	// EnsureRoom creates an ephemeral execution context inside a world.
	EnsureRoom(ctx context.Context, roomID, worldID string) error

	// DeleteRoom removes an ephemeral execution context.
	DeleteRoom(ctx context.Context, roomID string) error
}

// Registry is the host's correlation-id result registry. Each dispatched
// invocation writes its outcome under the correlation id it was given; the
// pipeline reads it back after Dispatch returns.
type Registry interface {
	Put(correlationID string, result types.ExecutionResult)
	Get(correlationID string) (types.ExecutionResult, bool)
	Delete(correlationID string)
}
