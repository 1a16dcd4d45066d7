// Package types provides shared type definitions used across advisor packages.
// This package exists to break import cycles between pipeline, store, and
// decision. Types in this package are foundational data structures with no
// complex dependencies.
package types

import (
	"encoding/json"
	"time"
)

// =============================================================================
// CAPABILITY DISCOVERY
// =============================================================================

// Category partitions capabilities by side effect: DATA capabilities are
// read-only, ACTION capabilities mutate state when invoked.
type Category string

const (
	CategoryData   Category = "DATA"
	CategoryAction Category = "ACTION"
)

// Known capability sub-types. Classification may return values outside these
// lists (the vocabulary is advisory, not enforced), but prompts steer the
// model toward them so grouping stays stable across runs.
var (
	DataTypes   = []string{"market_data", "portfolio", "wallet", "social", "news"}
	ActionTypes = []string{"trade", "transfer", "stake", "governance", "communication"}
)

// Capability is a named, invokable operation discovered from the host agent
// runtime. Capabilities are discovered fresh each run and never persisted.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	Provider    string   `json:"provider"` // owning plugin/provider name
}

// Classification labels one capability with its category and sub-type.
// Ephemeral, computed once per run.
type Classification struct {
	Capability Capability `json:"capability"`
	Category   Category   `json:"category"`
	Kind       string     `json:"kind"` // sub-type within the category
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Owner      string     `json:"owner"`
}

// ContextSnapshot is one provider's contribution to the ambient context,
// captured at collection time.
type ContextSnapshot struct {
	Provider    string          `json:"provider"`
	Data        json.RawMessage `json:"data"`
	CollectedAt time.Time       `json:"collected_at"`
}

// ExecutionResult is the outcome of invoking one capability through the host
// runtime. Either Data or Error is set, per Success.
type ExecutionResult struct {
	Capability string          `json:"capability"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// =============================================================================
// PERSISTED ENTITIES
// =============================================================================

// Analysis is the four-section narrative produced by one pipeline run.
// Immutable after persistence; owns zero or more Recommendations.
type Analysis struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	CreatedAt        time.Time `json:"created_at"`
	Overview         string    `json:"overview"`
	Conditions       string    `json:"conditions"`
	Risk             string    `json:"risk"`
	Opportunities    string    `json:"opportunities"`
	CapabilitiesUsed []string  `json:"capabilities_used"`
	DurationMs       int64     `json:"duration_ms"`
}

// Priority ranks a recommendation. The ordinal encoding (high=3, medium=2,
// low=1) is what the store persists so ORDER BY stays stable.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Ordinal returns the sort weight for the priority. Unknown values sort last.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// PriorityFromOrdinal inverts Ordinal. Out-of-range ordinals map to low.
func PriorityFromOrdinal(n int) Priority {
	switch n {
	case 3:
		return PriorityHigh
	case 2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Valid reports whether p is one of the three defined priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Status tracks a recommendation through the decision state machine:
// pending -> rejected, or pending -> executing -> {completed | failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusFailed
}

// ErrorKind distinguishes failures that happened before the capability could
// be located (initialization) from failures of the capability itself
// (execution). Only set when Status is failed.
type ErrorKind string

const (
	ErrorKindInitialization ErrorKind = "initialization"
	ErrorKindExecution      ErrorKind = "execution"
)

// ActionResult is the payload written back when an accepted recommendation
// finishes executing.
type ActionResult struct {
	Text      string          `json:"text"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Recommendation is a generated, persisted suggestion to invoke one ACTION
// capability, carrying everything needed to trigger it later.
type Recommendation struct {
	ID              string            `json:"id"`
	AnalysisID      string            `json:"analysis_id"`
	ActionType      string            `json:"action_type"`
	Owner           string            `json:"owner"`
	Priority        Priority          `json:"priority"`
	Reasoning       string            `json:"reasoning"`
	Confidence      float64           `json:"confidence"`
	TriggerPhrase   string            `json:"trigger_phrase"`
	Params          map[string]string `json:"params,omitempty"`
	EstimatedImpact string            `json:"estimated_impact,omitempty"`
	EstimatedGas    string            `json:"estimated_gas,omitempty"`
	Status          Status            `json:"status"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	ExecutedAt      *time.Time        `json:"executed_at,omitempty"`
	Result          *ActionResult     `json:"result,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorKind       ErrorKind         `json:"error_kind,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// =============================================================================
// DECISIONS
// =============================================================================

// Verdict is a human accept/reject call on a pending recommendation.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// Valid reports whether v is a recognized verdict.
func (v Verdict) Valid() bool {
	return v == VerdictAccept || v == VerdictReject
}

// Decision pairs a recommendation id with a verdict. Transient input; not
// persisted as its own entity.
type Decision struct {
	ActionID string  `json:"actionId"`
	Verdict  Verdict `json:"decision"`
}
