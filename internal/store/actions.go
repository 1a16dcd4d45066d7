package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"advisor/internal/logging"
	"advisor/internal/types"
)

// GetAction retrieves one recommended action by id. Returns ErrNotFound when
// absent.
func (s *LocalStore) GetAction(id string) (*types.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(actionSelect+` WHERE id = ?`, id)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
		}
		logging.Get(logging.CategoryStore).Error("Failed to query action %s: %v", id, err)
		return nil, err
	}
	return action, nil
}

// ListActions retrieves all actions for an analysis, highest priority first,
// ties broken by confidence.
func (s *LocalStore) ListActions(analysisID string) ([]*types.Recommendation, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListActions")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		actionSelect+` WHERE analysis_id = ? ORDER BY priority DESC, confidence DESC`,
		analysisID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to list actions for analysis %s: %v", analysisID, err)
		return nil, err
	}
	defer rows.Close()

	var out []*types.Recommendation
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to scan action row: %v", err)
			return nil, err
		}
		out = append(out, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Listed %d actions for analysis %s", len(out), analysisID)
	return out, nil
}

// MarkRejected transitions an action from pending to rejected, stamping
// decided_at. Returns ErrConflict if the action already left pending.
func (s *LocalStore) MarkRejected(id string, decidedAt time.Time) error {
	return s.transition(id,
		`UPDATE recommended_actions SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
		[]interface{}{string(types.StatusRejected), decidedAt, id, string(types.StatusPending)},
		types.StatusRejected,
	)
}

// MarkExecuting transitions an action from pending to executing, stamping
// decided_at. This is the compare-and-set guard: of two concurrent accepts
// for the same action, exactly one sees a row update and the other gets
// ErrConflict.
func (s *LocalStore) MarkExecuting(id string, decidedAt time.Time) error {
	return s.transition(id,
		`UPDATE recommended_actions SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
		[]interface{}{string(types.StatusExecuting), decidedAt, id, string(types.StatusPending)},
		types.StatusExecuting,
	)
}

// MarkCompleted transitions an action from executing to completed, stamping
// executed_at and recording the execution result.
func (s *LocalStore) MarkCompleted(id string, executedAt time.Time, result *types.ActionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result for action %s: %w", id, err)
	}
	return s.transition(id,
		`UPDATE recommended_actions SET status = ?, executed_at = ?, result = ? WHERE id = ? AND status = ?`,
		[]interface{}{string(types.StatusCompleted), executedAt, string(resultJSON), id, string(types.StatusExecuting)},
		types.StatusCompleted,
	)
}

// MarkFailed transitions an action from executing to failed, stamping
// executed_at and recording the error and its kind.
func (s *LocalStore) MarkFailed(id string, executedAt time.Time, errMsg string, kind types.ErrorKind) error {
	return s.transition(id,
		`UPDATE recommended_actions SET status = ?, executed_at = ?, error = ?, error_kind = ? WHERE id = ? AND status = ?`,
		[]interface{}{string(types.StatusFailed), executedAt, errMsg, string(kind), id, string(types.StatusExecuting)},
		types.StatusFailed,
	)
}

// transition runs a guarded status update. Zero rows affected means either
// the row is missing (ErrNotFound) or the guard lost the race (ErrConflict).
func (s *LocalStore) transition(id, query string, args []interface{}, target types.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to transition action %s to %s: %v", id, target, err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRow(`SELECT status FROM recommended_actions WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("action %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		logging.StoreDebug("Transition to %s refused for action %s: current status %s", target, id, current)
		return fmt.Errorf("action %s is %s: %w", id, current, ErrConflict)
	}

	logging.Store("Action %s transitioned to %s", id, target)
	return nil
}

const actionSelect = `SELECT id, analysis_id, action_type, owner, priority, reasoning, confidence,
	trigger_phrase, params, estimated_impact, estimated_gas, status,
	decided_at, executed_at, result, error, error_kind, created_at
	FROM recommended_actions`

func scanAction(row rowScanner) (*types.Recommendation, error) {
	var a types.Recommendation
	var ordinal int
	var paramsJSON, status, errorKind string
	var decidedAt, executedAt sql.NullTime
	var resultJSON sql.NullString

	err := row.Scan(&a.ID, &a.AnalysisID, &a.ActionType, &a.Owner, &ordinal, &a.Reasoning, &a.Confidence,
		&a.TriggerPhrase, &paramsJSON, &a.EstimatedImpact, &a.EstimatedGas, &status,
		&decidedAt, &executedAt, &resultJSON, &a.Error, &errorKind, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Priority = types.PriorityFromOrdinal(ordinal)
	a.Status = types.Status(status)
	a.ErrorKind = types.ErrorKind(errorKind)
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		a.ExecutedAt = &t
	}
	if paramsJSON != "" && paramsJSON != "{}" {
		if err := json.Unmarshal([]byte(paramsJSON), &a.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result types.ActionResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		a.Result = &result
	}
	return &a, nil
}
