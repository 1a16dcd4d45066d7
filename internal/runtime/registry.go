package runtime

import (
	"sync"

	"advisor/internal/types"
)

// MemoryRegistry is an in-memory Registry implementation. Safe for concurrent
// use; entries live until explicitly deleted.
type MemoryRegistry struct {
	mu      sync.RWMutex
	results map[string]types.ExecutionResult
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		results: make(map[string]types.ExecutionResult),
	}
}

// Put stores a result under a correlation id, replacing any previous entry.
func (r *MemoryRegistry) Put(correlationID string, result types.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[correlationID] = result
}

// Get returns the result for a correlation id.
func (r *MemoryRegistry) Get(correlationID string) (types.ExecutionResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[correlationID]
	return result, ok
}

// Delete removes an entry. Deleting a missing id is a no-op.
func (r *MemoryRegistry) Delete(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.results, correlationID)
}

// Len returns the number of stored results.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}
