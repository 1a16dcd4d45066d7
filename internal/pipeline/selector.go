package pipeline

import (
	"context"
	"sync"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/types"
)

// Selector filters DATA capability groups down to the ones worth invoking
// against the current context, one inference call per sub-type group.
type Selector struct {
	llm inference.LLMClient
}

func NewSelector(llm inference.LLMClient) *Selector {
	return &Selector{llm: llm}
}

type selectionResponse struct {
	Relevant  []string `json:"relevant"`
	Reasoning string   `json:"reasoning"`
}

// Select runs all group selections concurrently and returns the flattened
// union. A failing group contributes nothing; the failure never reaches the
// caller. Output order is not meaningful.
func (s *Selector) Select(ctx context.Context, dataByType map[string][]types.Capability, snapshots []types.ContextSnapshot) []types.Capability {
	if len(dataByType) == 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategorySelect, "Select")
	defer timer.Stop()

	var mu sync.Mutex
	var wg sync.WaitGroup
	var selected []types.Capability

	for subType, group := range dataByType {
		wg.Add(1)
		go func(subType string, group []types.Capability) {
			defer wg.Done()

			picked := s.selectGroup(ctx, subType, group, snapshots)
			if len(picked) == 0 {
				return
			}
			mu.Lock()
			selected = append(selected, picked...)
			mu.Unlock()
		}(subType, group)
	}
	wg.Wait()

	logging.Select("Selected %d capabilities across %d groups", len(selected), len(dataByType))
	return selected
}

func (s *Selector) selectGroup(ctx context.Context, subType string, group []types.Capability, snapshots []types.ContextSnapshot) []types.Capability {
	var resp selectionResponse
	err := completeStructured(ctx, s.llm, selectSystemPrompt, selectPrompt(subType, group, snapshots), selectionSchema, &resp)
	if err != nil {
		logging.Get(logging.CategorySelect).Warn("Selection failed for group %s: %v", subType, err)
		return nil
	}

	names := make(map[string]bool, len(resp.Relevant))
	for _, name := range resp.Relevant {
		names[name] = true
	}

	var picked []types.Capability
	for _, cap := range group {
		if names[cap.Name] {
			picked = append(picked, cap)
		}
	}
	logging.SelectDebug("Group %s: %d/%d relevant", subType, len(picked), len(group))
	return picked
}
