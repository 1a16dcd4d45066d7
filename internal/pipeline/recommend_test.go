package pipeline

import (
	"context"
	"strings"
	"testing"

	"advisor/internal/types"
)

var testInsight = &Insight{Overview: "o", Conditions: "c", Risk: "r", Opportunities: "p"}

func recommendResponder(selection string) func(systemPrompt, userPrompt string) (string, error) {
	return func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Return the names") {
			return selection, nil
		}
		return `{"priority": "high", "reasoning": "good setup", "confidence": 0.8,
			"trigger_phrase": "swap 10 ABC", "params": {"amount": "10"},
			"estimated_impact": "medium", "estimated_gas": "0.001 ETH"}`, nil
	}
}

func TestGenerateRecommendations(t *testing.T) {
	llm := &stubLLM{respond: recommendResponder(`{"relevant": ["EXECUTE_SWAP"]}`)}
	gen := NewRecommendationGenerator(llm, 10)

	actionByType := map[string][]types.Capability{
		"trade": {
			namedCapability("EXECUTE_SWAP", "dex-plugin"),
			namedCapability("EXECUTE_LIMIT", "dex-plugin"),
		},
	}
	recs := gen.Generate(context.Background(), "a1", testInsight, actionByType)

	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Error("Expected a fresh id")
	}
	if rec.AnalysisID != "a1" {
		t.Errorf("Expected analysis id a1, got %s", rec.AnalysisID)
	}
	if rec.ActionType != "trade" || rec.Owner != "dex-plugin" {
		t.Errorf("Type/owner wrong: %s/%s", rec.ActionType, rec.Owner)
	}
	if rec.Status != types.StatusPending {
		t.Errorf("Expected pending, got %s", rec.Status)
	}
	if rec.Priority != types.PriorityHigh || rec.Confidence != 0.8 {
		t.Errorf("Priority/confidence wrong: %s/%f", rec.Priority, rec.Confidence)
	}
	if rec.TriggerPhrase != "swap 10 ABC" || rec.Params["amount"] != "10" {
		t.Errorf("Trigger/params wrong: %q %v", rec.TriggerPhrase, rec.Params)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected created_at stamped")
	}
}

func TestGenerateFiltersFailedItems(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Return the names") {
			return `{"relevant": ["GOOD", "BAD"]}`, nil
		}
		if strings.Contains(userPrompt, "Capability: BAD") {
			return "", errStub
		}
		return `{"priority": "low", "reasoning": "x", "confidence": 0.4, "trigger_phrase": "do good"}`, nil
	}}
	gen := NewRecommendationGenerator(llm, 10)

	actionByType := map[string][]types.Capability{
		"trade": {
			namedCapability("GOOD", "p"),
			namedCapability("BAD", "p"),
		},
	}
	recs := gen.Generate(context.Background(), "a1", testInsight, actionByType)

	if len(recs) != 1 {
		t.Fatalf("Expected failed item filtered, got %d recommendations", len(recs))
	}
	if recs[0].TriggerPhrase != "do good" {
		t.Errorf("Wrong survivor: %+v", recs[0])
	}
}

func TestGenerateIsolatesFailingGroup(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "sub_type=governance") {
			return "", errStub
		}
		return recommendResponder(`{"relevant": ["EXECUTE_SWAP"]}`)(systemPrompt, userPrompt)
	}}
	gen := NewRecommendationGenerator(llm, 10)

	actionByType := map[string][]types.Capability{
		"trade":      {namedCapability("EXECUTE_SWAP", "dex-plugin")},
		"governance": {namedCapability("CAST_VOTE", "dao-plugin")},
	}
	recs := gen.Generate(context.Background(), "a1", testInsight, actionByType)

	if len(recs) != 1 || recs[0].ActionType != "trade" {
		t.Fatalf("Expected only the trade group to survive, got %+v", recs)
	}
}

func TestGenerateInvalidPriorityDefaultsToMedium(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Return the names") {
			return `{"relevant": ["EXECUTE_SWAP"]}`, nil
		}
		return `{"priority": "urgent", "reasoning": "x", "confidence": 0.5, "trigger_phrase": "go"}`, nil
	}}
	gen := NewRecommendationGenerator(llm, 10)

	recs := gen.Generate(context.Background(), "a1", testInsight, map[string][]types.Capability{
		"trade": {namedCapability("EXECUTE_SWAP", "p")},
	})
	if len(recs) != 1 || recs[0].Priority != types.PriorityMedium {
		t.Fatalf("Expected medium fallback, got %+v", recs)
	}
}

func TestGenerateSortsAndTruncates(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Return the names") {
			return `{"relevant": ["A", "B", "C"]}`, nil
		}
		switch {
		case strings.Contains(userPrompt, "Capability: A"):
			return `{"priority": "low", "reasoning": "x", "confidence": 0.9, "trigger_phrase": "a"}`, nil
		case strings.Contains(userPrompt, "Capability: B"):
			return `{"priority": "high", "reasoning": "x", "confidence": 0.6, "trigger_phrase": "b"}`, nil
		default:
			return `{"priority": "high", "reasoning": "x", "confidence": 0.9, "trigger_phrase": "c"}`, nil
		}
	}}
	gen := NewRecommendationGenerator(llm, 2)

	recs := gen.Generate(context.Background(), "a1", testInsight, map[string][]types.Capability{
		"trade": {
			namedCapability("A", "p"),
			namedCapability("B", "p"),
			namedCapability("C", "p"),
		},
	})
	if len(recs) != 2 {
		t.Fatalf("Expected truncation to 2, got %d", len(recs))
	}
	if recs[0].TriggerPhrase != "c" || recs[1].TriggerPhrase != "b" {
		t.Errorf("Expected order [c b], got [%s %s]", recs[0].TriggerPhrase, recs[1].TriggerPhrase)
	}
}
