package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"advisor/internal/logging"
)

// =============================================================================
// API SCHEDULER - SLOT-BASED LLM CALL SCHEDULING
// =============================================================================
//
// The Scheduler caps concurrent LLM API calls across all pipeline stages and
// background executions. Many callers may run at once, but only Slots calls
// are in flight against the provider. Callers acquire a slot per call and
// release it immediately after, so a long-running caller never starves the
// rest of the pipeline.

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	Slots              int           // Max simultaneous API calls
	SlotAcquireTimeout time.Duration // Max time to wait for a slot
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Slots:              4,
		SlotAcquireTimeout: 5 * time.Minute,
	}
}

// Scheduler manages LLM call slots.
type Scheduler struct {
	config SchedulerConfig
	slots  chan struct{} // Semaphore for API slots

	// Metrics
	totalCalls         int64
	totalWaitTime      int64 // nanoseconds
	currentlyWaiting   int32
	currentlyExecuting int32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Slots < 1 {
		config.Slots = 1
	}
	return &Scheduler{
		config: config,
		slots:  make(chan struct{}, config.Slots),
		stopCh: make(chan struct{}),
	}
}

// Acquire blocks until a call slot is available or the context is cancelled.
// caller identifies the pipeline stage for logging.
func (s *Scheduler) Acquire(ctx context.Context, caller string) error {
	waitStart := time.Now()

	atomic.AddInt32(&s.currentlyWaiting, 1)
	defer atomic.AddInt32(&s.currentlyWaiting, -1)

	if len(s.slots) >= s.config.Slots {
		logging.APIDebug("Scheduler: %s waiting for slot (active=%d/%d, waiting=%d)",
			caller, len(s.slots), s.config.Slots, atomic.LoadInt32(&s.currentlyWaiting))
	}

	select {
	case s.slots <- struct{}{}:
		waitDuration := time.Since(waitStart)
		atomic.AddInt64(&s.totalWaitTime, int64(waitDuration))
		atomic.AddInt32(&s.currentlyExecuting, 1)

		if waitDuration > 100*time.Millisecond {
			logging.API("Scheduler: %s acquired slot after %v", caller, waitDuration)
		}
		return nil

	case <-ctx.Done():
		logging.APIWarn("Scheduler: %s cancelled while waiting for slot (waited %v)",
			caller, time.Since(waitStart))
		return ctx.Err()

	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release returns a call slot after the call completes.
func (s *Scheduler) Release(caller string) {
	select {
	case <-s.slots:
	default:
		// Releasing without acquiring
		logging.APIError("Scheduler: %s released slot it didn't hold", caller)
		return
	}

	atomic.AddInt32(&s.currentlyExecuting, -1)
	atomic.AddInt64(&s.totalCalls, 1)

	logging.APIDebug("Scheduler: %s released slot (total_calls=%d)", caller, atomic.LoadInt64(&s.totalCalls))
}

// Metrics returns current scheduler metrics.
func (s *Scheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		MaxSlots:        s.config.Slots,
		ActiveSlots:     int(atomic.LoadInt32(&s.currentlyExecuting)),
		WaitingForSlot:  int(atomic.LoadInt32(&s.currentlyWaiting)),
		TotalCalls:      atomic.LoadInt64(&s.totalCalls),
		TotalWaitTimeNs: atomic.LoadInt64(&s.totalWaitTime),
	}
}

// SchedulerMetrics provides observability into scheduler state.
type SchedulerMetrics struct {
	MaxSlots        int
	ActiveSlots     int
	WaitingForSlot  int
	TotalCalls      int64
	TotalWaitTimeNs int64
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, avg_wait=%v",
		m.ActiveSlots, m.MaxSlots, m.WaitingForSlot, m.TotalCalls, avgWait)
}

// Stop shuts down the scheduler. Waiters receive an error.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// -----------------------------------------------------------------------------
// Scheduled LLM Call Wrapper
// -----------------------------------------------------------------------------

// ScheduledClient wraps an LLM client with slot acquisition/release.
// Implements SchemaCapableLLMClient so it can be injected transparently.
type ScheduledClient struct {
	Scheduler *Scheduler
	Caller    string
	Client    LLMClient
}

var _ LLMClient = (*ScheduledClient)(nil)

// NewScheduledClient creates a wrapper for scheduled LLM calls.
func NewScheduledClient(scheduler *Scheduler, caller string, client LLMClient) *ScheduledClient {
	return &ScheduledClient{
		Scheduler: scheduler,
		Caller:    caller,
		Client:    client,
	}
}

// Complete makes an LLM call under a slot.
func (c *ScheduledClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", fmt.Errorf("failed to acquire API slot: %w", err)
	}
	defer c.Scheduler.Release(c.Caller)

	return c.Client.Complete(ctx, prompt)
}

// CompleteWithSystem makes an LLM call with a system prompt under a slot.
func (c *ScheduledClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", fmt.Errorf("failed to acquire API slot: %w", err)
	}
	defer c.Scheduler.Release(c.Caller)

	return c.Client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// CompleteWithSchema makes a schema-enforced LLM call under a slot.
// Falls back to ErrSchemaNotSupported if the wrapped client cannot enforce
// schemas.
func (c *ScheduledClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	sc, ok := AsSchemaCapable(c.Client)
	if !ok {
		return "", ErrSchemaNotSupported
	}

	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", fmt.Errorf("failed to acquire API slot: %w", err)
	}
	defer c.Scheduler.Release(c.Caller)

	return sc.CompleteWithSchema(ctx, systemPrompt, userPrompt, jsonSchema)
}

// SchemaCapable reports whether the wrapped client supports schema enforcement.
func (c *ScheduledClient) SchemaCapable() bool {
	_, ok := AsSchemaCapable(c.Client)
	return ok
}
