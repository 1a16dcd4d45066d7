package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"advisor/internal/types"
)

// stubLLM answers deterministically from the user prompt. Not schema capable,
// so completeStructured exercises the plain-completion fallback.
type stubLLM struct {
	calls   int64
	respond func(systemPrompt, userPrompt string) (string, error)
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.respond(systemPrompt, userPrompt)
}

func (s *stubLLM) callCount() int64 {
	return atomic.LoadInt64(&s.calls)
}

// classifyByName answers classification prompts from the capability name:
// names starting with GET are DATA/market_data, everything else is
// ACTION/trade.
func classifyByName(systemPrompt, userPrompt string) (string, error) {
	name := promptField(userPrompt, "name: ")
	if strings.HasPrefix(name, "GET") {
		return `{"category": "DATA", "sub_type": "market_data", "confidence": 0.9, "reasoning": "reads state"}`, nil
	}
	return `{"category": "ACTION", "sub_type": "trade", "confidence": 0.85, "reasoning": "mutates state"}`, nil
}

// promptField extracts the rest of the line following the given marker.
func promptField(prompt, marker string) string {
	idx := strings.Index(prompt, marker)
	if idx == -1 {
		return ""
	}
	rest := prompt[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

func namedCapability(name, provider string) types.Capability {
	return types.Capability{
		Name:        name,
		Description: "test capability " + name,
		Provider:    provider,
	}
}

// fakeHost is an in-memory host environment. Dispatch writes the configured
// result for the capability into the registry under the correlation id.
type fakeHost struct {
	mu            sync.Mutex
	capabilities  []types.Capability
	contextData   map[string]json.RawMessage
	results       map[string]types.ExecutionResult // capability name -> result
	registry      interface{ Put(string, types.ExecutionResult) }
	dispatchCount int
	dispatched    []string
	rooms         map[string]string
	deletedRooms  []string
	dispatchErr   map[string]error
	silent        map[string]bool // dispatch succeeds but no result registered
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		contextData: map[string]json.RawMessage{},
		results:     map[string]types.ExecutionResult{},
		rooms:       map[string]string{},
		dispatchErr: map[string]error{},
		silent:      map[string]bool{},
	}
}

func (f *fakeHost) Capabilities(ctx context.Context) ([]types.Capability, error) {
	return f.capabilities, nil
}

func (f *fakeHost) ComposeContext(ctx context.Context) (map[string]json.RawMessage, error) {
	return f.contextData, nil
}

func (f *fakeHost) Dispatch(ctx context.Context, correlationID, roomID, trigger, capability string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchCount++
	f.dispatched = append(f.dispatched, capability)
	if err, ok := f.dispatchErr[capability]; ok {
		return err
	}
	if f.silent[capability] {
		return nil
	}
	result, ok := f.results[capability]
	if !ok {
		result = types.ExecutionResult{Capability: capability, Success: true, Data: json.RawMessage(`{"ok":true}`)}
	}
	if f.registry != nil {
		f.registry.Put(correlationID, result)
	}
	return nil
}

func (f *fakeHost) EnsureWorld(ctx context.Context, worldID, agentID, name string) error {
	return nil
}

func (f *fakeHost) EnsureRoom(ctx context.Context, roomID, worldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID] = worldID
	return nil
}

func (f *fakeHost) DeleteRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedRooms = append(f.deletedRooms, roomID)
	delete(f.rooms, roomID)
	return nil
}

func (f *fakeHost) dispatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatchCount
}

var errStub = fmt.Errorf("stub inference failure")
