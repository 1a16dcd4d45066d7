package pipeline

import (
	"context"
	"errors"
	"testing"

	"advisor/internal/runtime"
	"advisor/internal/types"
	"advisor/internal/world"
)

func triggerResponder(systemPrompt, userPrompt string) (string, error) {
	return "please run the capability", nil
}

func newTestExecutor(t *testing.T, llm *stubLLM, host *fakeHost) (*Executor, *runtime.MemoryRegistry) {
	t.Helper()
	registry := runtime.NewMemoryRegistry()
	host.registry = registry
	worlds := world.NewManager(host, "advisor", true)
	return NewExecutor(llm, host, registry, worlds, 3), registry
}

func TestExecuteEmptyInputShortCircuits(t *testing.T) {
	llm := &stubLLM{respond: triggerResponder}
	host := newFakeHost()
	executor, _ := newTestExecutor(t, llm, host)

	results, roomIDs := executor.Execute(context.Background(), "w1", nil)

	if results != nil || roomIDs != nil {
		t.Errorf("Expected nil results and rooms, got %v %v", results, roomIDs)
	}
	if host.dispatches() != 0 {
		t.Errorf("Expected 0 host dispatches, got %d", host.dispatches())
	}
	if llm.callCount() != 0 {
		t.Errorf("Expected 0 inference calls, got %d", llm.callCount())
	}
}

func TestExecuteCollectsResultsAndRooms(t *testing.T) {
	llm := &stubLLM{respond: triggerResponder}
	host := newFakeHost()
	host.results["GET_PRICE"] = types.ExecutionResult{Success: true, Data: []byte(`{"price": 42}`)}
	host.results["GET_NEWS"] = types.ExecutionResult{Success: false, Error: "feed unavailable"}
	executor, registry := newTestExecutor(t, llm, host)

	caps := []types.Capability{
		namedCapability("GET_PRICE", "market-plugin"),
		namedCapability("GET_NEWS", "news-plugin"),
	}
	results, roomIDs := executor.Execute(context.Background(), "w1", caps)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if len(roomIDs) != 2 {
		t.Errorf("Expected 2 rooms created, got %d", len(roomIDs))
	}

	byName := map[string]types.ExecutionResult{}
	for _, r := range results {
		byName[r.Capability] = r
	}
	if r := byName["GET_PRICE"]; !r.Success || string(r.Data) != `{"price": 42}` {
		t.Errorf("GET_PRICE result wrong: %+v", r)
	}
	if r := byName["GET_NEWS"]; r.Success || r.Error != "feed unavailable" {
		t.Errorf("GET_NEWS result wrong: %+v", r)
	}

	// Results are consumed from the registry after lookup.
	if registry.Len() != 0 {
		t.Errorf("Expected registry drained, got %d entries", registry.Len())
	}
}

func TestExecuteNoResultIsFailure(t *testing.T) {
	llm := &stubLLM{respond: triggerResponder}
	host := newFakeHost()
	host.silent["GET_PRICE"] = true
	executor, _ := newTestExecutor(t, llm, host)

	results, roomIDs := executor.Execute(context.Background(), "w1", []types.Capability{namedCapability("GET_PRICE", "p")})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Error("Expected failure when registry has no result")
	}
	if results[0].Error != NoResultMessage {
		t.Errorf("Expected fixed no-result message, got %q", results[0].Error)
	}
	if len(roomIDs) != 1 {
		t.Errorf("Room should still be returned for cleanup, got %v", roomIDs)
	}
}

func TestExecuteDispatchFailureIsolated(t *testing.T) {
	llm := &stubLLM{respond: triggerResponder}
	host := newFakeHost()
	host.dispatchErr["GET_BAD"] = errors.New("host refused")
	host.results["GET_PRICE"] = types.ExecutionResult{Success: true, Data: []byte(`{}`)}
	executor, _ := newTestExecutor(t, llm, host)

	caps := []types.Capability{
		namedCapability("GET_PRICE", "p"),
		namedCapability("GET_BAD", "p"),
	}
	results, _ := executor.Execute(context.Background(), "w1", caps)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	byName := map[string]types.ExecutionResult{}
	for _, r := range results {
		byName[r.Capability] = r
	}
	if byName["GET_PRICE"].Success != true {
		t.Error("Healthy capability should succeed despite sibling failure")
	}
	if byName["GET_BAD"].Success {
		t.Error("Failed dispatch should produce a failed result")
	}
}

func TestExecuteTriggerFailureProducesFailedResult(t *testing.T) {
	llm := &stubLLM{respond: func(systemPrompt, userPrompt string) (string, error) {
		return "", errStub
	}}
	host := newFakeHost()
	executor, _ := newTestExecutor(t, llm, host)

	results, roomIDs := executor.Execute(context.Background(), "w1", []types.Capability{namedCapability("GET_PRICE", "p")})

	if len(results) != 1 || results[0].Success {
		t.Fatalf("Expected 1 failed result, got %+v", results)
	}
	if host.dispatches() != 0 {
		t.Errorf("No dispatch should happen when trigger generation fails, got %d", host.dispatches())
	}
	if len(roomIDs) != 0 {
		t.Errorf("No room should be created when trigger generation fails, got %v", roomIDs)
	}
}
