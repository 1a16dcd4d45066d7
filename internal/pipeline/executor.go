package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/runtime"
	"advisor/internal/types"
	"advisor/internal/world"
)

// NoResultMessage is recorded when the host reports completion but the result
// registry has nothing under the correlation id.
const NoResultMessage = "no result found for capability"

// Executor drives selected DATA capabilities through the host environment.
// Each capability gets its own trigger phrase, room, and correlation id; a
// per-capability failure becomes a failed ExecutionResult, never an abort.
type Executor struct {
	llm           inference.LLMClient
	host          runtime.Host
	registry      runtime.Registry
	worlds        *world.Manager
	maxConcurrent int
}

func NewExecutor(llm inference.LLMClient, host runtime.Host, registry runtime.Registry, worlds *world.Manager, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Executor{llm: llm, host: host, registry: registry, worlds: worlds, maxConcurrent: maxConcurrent}
}

// Execute invokes every capability concurrently, bounded by maxConcurrent,
// and returns the results plus the ids of every room created (including
// rooms whose invocation later failed) so the caller can schedule cleanup.
// Empty input short-circuits with no host calls.
func (e *Executor) Execute(ctx context.Context, worldID string, caps []types.Capability) ([]types.ExecutionResult, []string) {
	if len(caps) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryExecute, "Execute")
	defer timer.StopWithInfo()

	var mu sync.Mutex
	results := make([]types.ExecutionResult, 0, len(caps))
	var roomIDs []string

	g := new(errgroup.Group)
	g.SetLimit(e.maxConcurrent)
	for _, cap := range caps {
		cap := cap
		g.Go(func() error {
			result, roomID := e.executeOne(ctx, worldID, cap)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
			if roomID != "" {
				roomIDs = append(roomIDs, roomID)
			}
			// Branch failures are recorded in the result, never propagated.
			return nil
		})
	}
	g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	logging.Execute("Executed %d capabilities: %d succeeded, %d failed", len(results), succeeded, len(results)-succeeded)
	return results, roomIDs
}

// executeOne runs the full pipeline for one capability. The returned roomID
// is empty only when room creation itself never happened.
func (e *Executor) executeOne(ctx context.Context, worldID string, cap types.Capability) (types.ExecutionResult, string) {
	trigger, err := e.llm.CompleteWithSystem(ctx, triggerSystemPrompt, triggerPrompt(cap))
	if err != nil {
		logging.ExecuteWarn("Trigger generation failed for %s: %v", cap.Name, err)
		return failedResult(cap.Name, "failed to generate trigger phrase: "+err.Error()), ""
	}
	trigger = strings.TrimSpace(trigger)

	roomID, err := e.worlds.NewRoom(ctx, worldID)
	if err != nil {
		logging.ExecuteWarn("Room creation failed for %s: %v", cap.Name, err)
		return failedResult(cap.Name, "failed to create room: "+err.Error()), ""
	}

	correlationID := uuid.NewString()
	logging.Execute("Dispatching %s (correlation=%s room=%s)", cap.Name, correlationID, roomID)

	if err := e.host.Dispatch(ctx, correlationID, roomID, trigger, cap.Name); err != nil {
		logging.ExecuteWarn("Dispatch failed for %s: %v", cap.Name, err)
		return failedResult(cap.Name, "dispatch failed: "+err.Error()), roomID
	}

	result, ok := e.registry.Get(correlationID)
	e.registry.Delete(correlationID)
	if !ok {
		logging.ExecuteWarn("No result for %s (correlation=%s)", cap.Name, correlationID)
		return failedResult(cap.Name, NoResultMessage), roomID
	}

	result.Capability = cap.Name
	return result, roomID
}

func failedResult(capability, message string) types.ExecutionResult {
	return types.ExecutionResult{Capability: capability, Success: false, Error: message}
}
