package pipeline

import (
	"context"
	"strings"
	"testing"

	"advisor/internal/types"
)

func TestSelectFiltersByName(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		return `{"relevant": ["GET_PRICE", "NOT_IN_GROUP"]}`, nil
	}}
	selector := NewSelector(llm)

	dataByType := map[string][]types.Capability{
		"market_data": {
			namedCapability("GET_PRICE", "p"),
			namedCapability("GET_VOLUME", "p"),
		},
	}
	selected := selector.Select(context.Background(), dataByType, nil)

	if len(selected) != 1 {
		t.Fatalf("Expected 1 selected capability, got %d", len(selected))
	}
	if selected[0].Name != "GET_PRICE" {
		t.Errorf("Expected GET_PRICE, got %s", selected[0].Name)
	}
}

func TestSelectIsolatesFailingGroup(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "sub_type=news") {
			return "", errStub
		}
		return `{"relevant": ["GET_PRICE"]}`, nil
	}}
	selector := NewSelector(llm)

	dataByType := map[string][]types.Capability{
		"market_data": {namedCapability("GET_PRICE", "p")},
		"news":        {namedCapability("GET_NEWS", "n")},
	}
	selected := selector.Select(context.Background(), dataByType, nil)

	if len(selected) != 1 {
		t.Fatalf("Expected failing group to contribute nothing, got %d capabilities", len(selected))
	}
	if selected[0].Name != "GET_PRICE" {
		t.Errorf("Expected surviving group's GET_PRICE, got %s", selected[0].Name)
	}
}

func TestSelectEmptyInput(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		return `{"relevant": []}`, nil
	}}
	selector := NewSelector(llm)

	if got := selector.Select(context.Background(), nil, nil); len(got) != 0 {
		t.Errorf("Expected empty selection, got %v", got)
	}
	if llm.callCount() != 0 {
		t.Errorf("Expected 0 inference calls, got %d", llm.callCount())
	}
}
