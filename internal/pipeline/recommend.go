package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/types"
)

// RecommendationGenerator turns an analysis plus the ACTION capability groups
// into ranked, ready-to-trigger recommendations. Two-level fan-out: select
// relevant capabilities per group, then generate one recommendation per
// selected capability. Failures at either level are isolated.
type RecommendationGenerator struct {
	llm                inference.LLMClient
	maxRecommendations int
}

func NewRecommendationGenerator(llm inference.LLMClient, maxRecommendations int) *RecommendationGenerator {
	return &RecommendationGenerator{llm: llm, maxRecommendations: maxRecommendations}
}

type recommendationResponse struct {
	Priority        string            `json:"priority"`
	Reasoning       string            `json:"reasoning"`
	Confidence      float64           `json:"confidence"`
	TriggerPhrase   string            `json:"trigger_phrase"`
	Params          map[string]string `json:"params"`
	EstimatedImpact string            `json:"estimated_impact"`
	EstimatedGas    string            `json:"estimated_gas"`
}

// selectedAction carries a capability through the fan-out with the sub-type
// of the group it was selected from.
type selectedAction struct {
	cap     types.Capability
	subType string
}

// Generate produces pending recommendations attached to analysisID. A group
// whose selection fails contributes nothing; a capability whose generation
// fails is dropped. The surviving list is sorted by priority then confidence
// and truncated to the configured maximum.
func (g *RecommendationGenerator) Generate(ctx context.Context, analysisID string, insight *Insight, actionByType map[string][]types.Capability) []types.Recommendation {
	if len(actionByType) == 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryRecommend, "Generate")
	defer timer.StopWithInfo()

	selected := g.selectActions(ctx, insight, actionByType)
	if len(selected) == 0 {
		logging.Recommend("No action capabilities selected for analysis %s", analysisID)
		return nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var recs []types.Recommendation

	for _, sa := range selected {
		wg.Add(1)
		go func(sa selectedAction) {
			defer wg.Done()

			rec := g.generateOne(ctx, analysisID, insight, sa)
			if rec == nil {
				return
			}
			mu.Lock()
			recs = append(recs, *rec)
			mu.Unlock()
		}(sa)
	}
	wg.Wait()

	sort.Slice(recs, func(i, j int) bool {
		pi, pj := recs[i].Priority.Ordinal(), recs[j].Priority.Ordinal()
		if pi != pj {
			return pi > pj
		}
		return recs[i].Confidence > recs[j].Confidence
	})
	if g.maxRecommendations > 0 && len(recs) > g.maxRecommendations {
		logging.Recommend("Truncating %d recommendations to %d", len(recs), g.maxRecommendations)
		recs = recs[:g.maxRecommendations]
	}

	logging.Recommend("Generated %d recommendations for analysis %s", len(recs), analysisID)
	return recs
}

// selectActions is the first fan-out level: one selection call per sub-type
// group against the analysis narrative.
func (g *RecommendationGenerator) selectActions(ctx context.Context, insight *Insight, actionByType map[string][]types.Capability) []selectedAction {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var selected []selectedAction

	for subType, group := range actionByType {
		wg.Add(1)
		go func(subType string, group []types.Capability) {
			defer wg.Done()

			var resp selectionResponse
			err := completeStructured(ctx, g.llm, selectSystemPrompt, recommendSelectPrompt(subType, group, insight), selectionSchema, &resp)
			if err != nil {
				logging.RecommendWarn("Action selection failed for group %s: %v", subType, err)
				return
			}

			names := make(map[string]bool, len(resp.Relevant))
			for _, name := range resp.Relevant {
				names[name] = true
			}

			mu.Lock()
			defer mu.Unlock()
			for _, cap := range group {
				if names[cap.Name] {
					selected = append(selected, selectedAction{cap: cap, subType: subType})
				}
			}
		}(subType, group)
	}
	wg.Wait()
	return selected
}

// generateOne is the second fan-out level: one full recommendation object per
// selected capability. Returns nil on any failure.
func (g *RecommendationGenerator) generateOne(ctx context.Context, analysisID string, insight *Insight, sa selectedAction) *types.Recommendation {
	var resp recommendationResponse
	err := completeStructured(ctx, g.llm, recommendSystemPrompt, recommendPrompt(sa.cap, insight), recommendationSchema, &resp)
	if err != nil {
		logging.RecommendWarn("Recommendation generation failed for %s: %v", sa.cap.Name, err)
		return nil
	}
	if strings.TrimSpace(resp.TriggerPhrase) == "" {
		logging.RecommendWarn("Recommendation for %s has no trigger phrase, dropping", sa.cap.Name)
		return nil
	}

	priority := types.Priority(strings.ToLower(strings.TrimSpace(resp.Priority)))
	if !priority.Valid() {
		logging.RecommendWarn("Invalid priority %q for %s, defaulting to medium", resp.Priority, sa.cap.Name)
		priority = types.PriorityMedium
	}

	return &types.Recommendation{
		ID:              uuid.NewString(),
		AnalysisID:      analysisID,
		ActionType:      sa.subType,
		Owner:           sa.cap.Provider,
		Priority:        priority,
		Reasoning:       resp.Reasoning,
		Confidence:      clampConfidence(resp.Confidence),
		TriggerPhrase:   strings.TrimSpace(resp.TriggerPhrase),
		Params:          resp.Params,
		EstimatedImpact: resp.EstimatedImpact,
		EstimatedGas:    resp.EstimatedGas,
		Status:          types.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
}
