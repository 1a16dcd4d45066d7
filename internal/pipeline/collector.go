package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"advisor/internal/logging"
	"advisor/internal/runtime"
	"advisor/internal/types"
)

// Collector gathers the ambient context in one host call. The host resolves
// all registered providers internally; this layer only flattens the result
// into one snapshot per provider with a shared timestamp.
type Collector struct {
	host runtime.Host
}

func NewCollector(host runtime.Host) *Collector {
	return &Collector{host: host}
}

// Collect returns one snapshot per provider, sorted by provider name so
// downstream prompts are stable across runs.
func (c *Collector) Collect(ctx context.Context) ([]types.ContextSnapshot, error) {
	payloads, err := c.host.ComposeContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("compose context: %w", err)
	}

	now := time.Now().UTC()
	snapshots := make([]types.ContextSnapshot, 0, len(payloads))
	for provider, data := range payloads {
		snapshots = append(snapshots, types.ContextSnapshot{
			Provider:    provider,
			Data:        data,
			CollectedAt: now,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Provider < snapshots[j].Provider
	})

	logging.Pipeline("Collected context from %d providers", len(snapshots))
	return snapshots, nil
}
