// Package logging provides audit logging for advisor runs. Audit logs are
// structured JSON-lines events capturing the pipeline lifecycle, LLM calls,
// capability dispatches, and decision processing, suitable for offline
// analysis of a run.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Pipeline run lifecycle
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunError    AuditEventType = "run_error"

	// Pipeline stage events
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditStageError    AuditEventType = "stage_error"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Capability dispatch events
	AuditDispatchStart    AuditEventType = "dispatch_start"
	AuditDispatchComplete AuditEventType = "dispatch_complete"
	AuditDispatchError    AuditEventType = "dispatch_error"

	// Decision processing events
	AuditDecisionAccept   AuditEventType = "decision_accept"
	AuditDecisionReject   AuditEventType = "decision_reject"
	AuditExecutionStart   AuditEventType = "execution_start"
	AuditExecutionDone    AuditEventType = "execution_complete"
	AuditExecutionError   AuditEventType = "execution_error"
	AuditDecisionConflict AuditEventType = "decision_conflict"

	// Store events
	AuditStoreWrite AuditEventType = "store_write"
	AuditStoreError AuditEventType = "store_error"

	// World lifecycle events
	AuditWorldEnsure AuditEventType = "world_ensure"
	AuditRoomCreate  AuditEventType = "room_create"
	AuditRoomCleanup AuditEventType = "room_cleanup"

	// Error events
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents a structured audit log entry
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`     // Unix milliseconds
	EventType  AuditEventType         `json:"event"`  // Event type
	Category   string                 `json:"cat"`    // Log category
	RunID      string                 `json:"run"`    // Pipeline run correlation
	AgentID    string                 `json:"agent"`  // Agent the run belongs to
	Target     string                 `json:"target"` // Target of operation (capability, action id, stage)
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging scoped to a run
type AuditLogger struct {
	runID    string
	agentID  string
	category Category
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a pipeline run
func AuditWithRun(runID, agentID string) *AuditLogger {
	return &AuditLogger{runID: runID, agentID: agentID}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.AgentID == "" && a.agentID != "" {
		event.AgentID = a.agentID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// RunStart logs the start of a pipeline run
func (a *AuditLogger) RunStart(runID, agentID string) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		RunID:     runID,
		AgentID:   agentID,
		Success:   true,
		Message:   fmt.Sprintf("Run started: %s (agent=%s)", runID, agentID),
	})
}

// RunComplete logs the completion of a pipeline run
func (a *AuditLogger) RunComplete(runID string, durationMs int64, actionCount int) {
	a.Log(AuditEvent{
		EventType:  AuditRunComplete,
		RunID:      runID,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"action_count": actionCount},
		Message:    fmt.Sprintf("Run completed: %s (%dms, %d actions)", runID, durationMs, actionCount),
	})
}

// RunError logs a failed pipeline run
func (a *AuditLogger) RunError(runID string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditRunError,
		RunID:     runID,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Run failed: %s (%s)", runID, errMsg),
	})
}

// StageComplete logs a pipeline stage finishing
func (a *AuditLogger) StageComplete(stage string, durationMs int64, success bool, errMsg string) {
	eventType := AuditStageComplete
	if !success {
		eventType = AuditStageError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     stage,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Stage %s (success=%v, %dms)", stage, success, durationMs),
	})
}

// LLMCall logs an LLM API call
func (a *AuditLogger) LLMCall(model string, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("LLM call: %s (%dms, success=%v)", model, durationMs, success),
	})
}

// Dispatch logs a capability dispatch through the host runtime
func (a *AuditLogger) Dispatch(capability string, durationMs int64, success bool, errMsg string) {
	eventType := AuditDispatchComplete
	if !success {
		eventType = AuditDispatchError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     capability,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Dispatch %s (%dms, success=%v)", capability, durationMs, success),
	})
}

// Decision logs an accept/reject verdict on a recommendation
func (a *AuditLogger) Decision(actionID string, accepted bool) {
	eventType := AuditDecisionReject
	if accepted {
		eventType = AuditDecisionAccept
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    actionID,
		Success:   true,
		Message:   fmt.Sprintf("Decision %s: %s", eventType, actionID),
	})
}

// Execution logs the outcome of a background action execution
func (a *AuditLogger) Execution(actionID string, durationMs int64, success bool, errMsg string) {
	eventType := AuditExecutionDone
	if !success {
		eventType = AuditExecutionError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     actionID,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Execution %s (success=%v, %dms)", actionID, success, durationMs),
	})
}

// Error logs an error event
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
