package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/types"
)

// Insight is the four-section narrative the pipeline persists as an Analysis.
type Insight struct {
	Overview      string `json:"overview"`
	Conditions    string `json:"conditions"`
	Risk          string `json:"risk"`
	Opportunities string `json:"opportunities"`
}

// InsightGenerator synthesizes the narrative from execution results and
// context. One inference call; its failure aborts the run.
type InsightGenerator struct {
	llm inference.LLMClient
}

func NewInsightGenerator(llm inference.LLMClient) *InsightGenerator {
	return &InsightGenerator{llm: llm}
}

// Generate returns the four sections plus the deduplicated list of
// contributing capability owners and providers.
func (g *InsightGenerator) Generate(ctx context.Context, results []types.ExecutionResult, snapshots []types.ContextSnapshot) (*Insight, []string, error) {
	timer := logging.StartTimer(logging.CategoryInsight, "Generate")
	defer timer.StopWithInfo()

	used := capabilitiesUsed(results, snapshots)

	var insight Insight
	err := completeStructured(ctx, g.llm, insightSystemPrompt, insightPrompt(results, snapshots), insightSchema, &insight)
	if err != nil {
		logging.Get(logging.CategoryInsight).Error("Insight generation failed: %v", err)
		return nil, nil, fmt.Errorf("insight generation: %w", err)
	}
	if insight.Overview == "" && insight.Conditions == "" && insight.Risk == "" && insight.Opportunities == "" {
		return nil, nil, fmt.Errorf("insight generation: empty response")
	}

	logging.Insight("Generated analysis from %d results, %d context snapshots", len(results), len(snapshots))
	return &insight, used, nil
}

// capabilitiesUsed derives the contributing-source list: the owning prefix of
// every successful result's capability name (the part before the first colon,
// or the whole name) plus every context provider name, deduplicated and
// sorted.
func capabilitiesUsed(results []types.ExecutionResult, snapshots []types.ContextSnapshot) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		if !r.Success {
			continue
		}
		name := r.Capability
		if idx := strings.Index(name, ":"); idx > 0 {
			name = name[:idx]
		}
		if name != "" {
			seen[name] = true
		}
	}
	for _, s := range snapshots {
		if s.Provider != "" {
			seen[s.Provider] = true
		}
	}

	used := make([]string, 0, len(seen))
	for name := range seen {
		used = append(used, name)
	}
	sort.Strings(used)
	return used
}
