// Package decision processes human accept/reject verdicts on pending
// recommendations and runs accepted ones against the host environment in
// detached background tasks.
package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"advisor/internal/logging"
	"advisor/internal/runtime"
	"advisor/internal/types"
	"advisor/internal/world"
)

// Store is the slice of the repository the processor needs.
type Store interface {
	GetAction(id string) (*types.Recommendation, error)
	GetAnalysis(id string) (*types.Analysis, error)
	MarkRejected(id string, decidedAt time.Time) error
	MarkExecuting(id string, decidedAt time.Time) error
	MarkCompleted(id string, executedAt time.Time, result *types.ActionResult) error
	MarkFailed(id string, executedAt time.Time, errMsg string, kind types.ErrorKind) error
}

// Outcome is the structured breakdown returned for a decision batch.
// Decisions that failed internally appear in neither list.
type Outcome struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// Processor drives the decision state machine. Rejection is synchronous;
// acceptance flips the row to executing and hands the rest to a background
// task whose outcome always lands back in the store as completed or failed.
type Processor struct {
	store    Store
	host     runtime.Host
	registry runtime.Registry
	worlds   *world.Manager

	execTimeout time.Duration
	wg          sync.WaitGroup
}

// NewProcessor creates a decision processor. execTimeout bounds each
// background execution; zero means no bound.
func NewProcessor(store Store, host runtime.Host, registry runtime.Registry, worlds *world.Manager, execTimeout time.Duration) *Processor {
	return &Processor{
		store:       store,
		host:        host,
		registry:    registry,
		worlds:      worlds,
		execTimeout: execTimeout,
	}
}

// Process applies a batch of decisions. One decision's failure (unknown id,
// bad verdict, lost compare-and-set) is logged and skipped, never aborting
// the rest of the batch. Returns the ids that were actually accepted and
// rejected.
func (p *Processor) Process(ctx context.Context, decisions []types.Decision) Outcome {
	outcome := Outcome{Accepted: []string{}, Rejected: []string{}}
	audit := logging.Audit()

	for _, d := range decisions {
		if d.ActionID == "" {
			logging.DecisionWarn("Skipping decision with empty action id")
			continue
		}
		if !d.Verdict.Valid() {
			logging.DecisionWarn("Skipping action %s: invalid verdict %q", d.ActionID, d.Verdict)
			continue
		}

		switch d.Verdict {
		case types.VerdictReject:
			if err := p.store.MarkRejected(d.ActionID, time.Now().UTC()); err != nil {
				logging.DecisionWarn("Reject failed for %s: %v", d.ActionID, err)
				continue
			}
			audit.Decision(d.ActionID, false)
			logging.Decision("Rejected action %s", d.ActionID)
			outcome.Rejected = append(outcome.Rejected, d.ActionID)

		case types.VerdictAccept:
			// The pending->executing transition is the guard: a second accept
			// for the same action loses the compare-and-set and is skipped,
			// so the capability can never be dispatched twice.
			if err := p.store.MarkExecuting(d.ActionID, time.Now().UTC()); err != nil {
				logging.DecisionWarn("Accept failed for %s: %v", d.ActionID, err)
				continue
			}
			audit.Decision(d.ActionID, true)
			logging.Decision("Accepted action %s, scheduling execution", d.ActionID)
			outcome.Accepted = append(outcome.Accepted, d.ActionID)

			p.wg.Add(1)
			go p.executeDetached(d.ActionID)
		}
	}
	return outcome
}

// Wait blocks until every background execution spawned so far has reached a
// terminal state. Used by shutdown and tests.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// executeDetached is the background path for one accepted action. It never
// returns an error: every failure mode, including panics, is written to the
// store as a terminal failed status.
func (p *Processor) executeDetached(actionID string) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.DecisionError("Panic executing action %s: %v", actionID, r)
			p.fail(actionID, fmt.Sprintf("panic during execution: %v", r), "")
		}
	}()

	ctx := context.Background()
	if p.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.execTimeout)
		defer cancel()
	}

	start := time.Now()
	audit := logging.Audit()

	rec, err := p.store.GetAction(actionID)
	if err != nil {
		p.fail(actionID, err.Error(), "")
		return
	}

	analysis, err := p.store.GetAnalysis(rec.AnalysisID)
	if err != nil {
		p.fail(actionID, err.Error(), "")
		return
	}

	capability, err := p.locateCapability(ctx, rec)
	if err != nil {
		p.fail(actionID, err.Error(), types.ErrorKindInitialization)
		audit.Execution(actionID, time.Since(start).Milliseconds(), false, err.Error())
		return
	}

	worldID, err := p.worlds.EnsureAgentWorld(ctx, analysis.AgentID)
	if err != nil {
		p.fail(actionID, err.Error(), types.ErrorKindInitialization)
		return
	}
	roomID, err := p.worlds.NewRoom(ctx, worldID)
	if err != nil {
		p.fail(actionID, err.Error(), types.ErrorKindInitialization)
		return
	}
	defer p.worlds.Cleanup(context.WithoutCancel(ctx), []string{roomID})

	correlationID := uuid.NewString()
	logging.Decision("Executing action %s via %s (correlation=%s)", actionID, capability.Name, correlationID)

	if err := p.host.Dispatch(ctx, correlationID, roomID, rec.TriggerPhrase, capability.Name); err != nil {
		p.fail(actionID, "dispatch failed: "+err.Error(), types.ErrorKindExecution)
		audit.Execution(actionID, time.Since(start).Milliseconds(), false, err.Error())
		return
	}

	result, ok := p.registry.Get(correlationID)
	p.registry.Delete(correlationID)
	if !ok {
		p.fail(actionID, "capability execution produced no result", types.ErrorKindExecution)
		audit.Execution(actionID, time.Since(start).Milliseconds(), false, "no result")
		return
	}
	if !result.Success {
		p.fail(actionID, result.Error, types.ErrorKindExecution)
		audit.Execution(actionID, time.Since(start).Milliseconds(), false, result.Error)
		return
	}

	now := time.Now().UTC()
	actionResult := &types.ActionResult{
		Text:      "execution completed",
		Data:      result.Data,
		Timestamp: now,
	}
	if err := p.store.MarkCompleted(actionID, now, actionResult); err != nil {
		logging.DecisionError("Failed to record completion for %s: %v", actionID, err)
		return
	}
	audit.Execution(actionID, time.Since(start).Milliseconds(), true, "")
	logging.Decision("Action %s completed in %dms", actionID, time.Since(start).Milliseconds())
}

// locateCapability finds the host capability the recommendation targets:
// same owner, preferring a name that mentions the action type.
func (p *Processor) locateCapability(ctx context.Context, rec *types.Recommendation) (types.Capability, error) {
	caps, err := p.host.Capabilities(ctx)
	if err != nil {
		return types.Capability{}, fmt.Errorf("discover capabilities: %w", err)
	}

	var fallback *types.Capability
	for i := range caps {
		c := caps[i]
		if c.Provider != rec.Owner {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(rec.ActionType)) {
			return c, nil
		}
		if fallback == nil {
			fallback = &c
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return types.Capability{}, fmt.Errorf("capability not found for action type %q (owner %q)", rec.ActionType, rec.Owner)
}

// fail writes the terminal failed state. When kind is empty it is derived
// from the message: "not found" means the capability could not even be
// located, everything else is an execution failure.
func (p *Processor) fail(actionID, msg string, kind types.ErrorKind) {
	if kind == "" {
		kind = classifyError(msg)
	}
	if err := p.store.MarkFailed(actionID, time.Now().UTC(), msg, kind); err != nil {
		logging.DecisionError("Failed to record failure for %s (%s): %v", actionID, msg, err)
		return
	}
	logging.Decision("Action %s failed (%s): %s", actionID, kind, msg)
}

func classifyError(msg string) types.ErrorKind {
	if strings.Contains(strings.ToLower(msg), "not found") {
		return types.ErrorKindInitialization
	}
	return types.ErrorKindExecution
}
