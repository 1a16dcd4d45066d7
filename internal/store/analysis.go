package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"advisor/internal/logging"
	"advisor/internal/types"
)

// SaveAnalysis persists an analysis and its recommendations in a single
// transaction. Either everything lands or nothing does, so an analysis can
// never appear without its actions.
func (s *LocalStore) SaveAnalysis(analysis *types.Analysis, actions []types.Recommendation) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveAnalysis")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving analysis: id=%s agent=%s actions=%d", analysis.ID, analysis.AgentID, len(actions))

	capsJSON, err := json.Marshal(analysis.CapabilitiesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities_used: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO analysis_results (id, agent_id, created_at, overview, conditions, risk, opportunities, capabilities_used, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID, analysis.AgentID, analysis.CreatedAt,
		analysis.Overview, analysis.Conditions, analysis.Risk, analysis.Opportunities,
		string(capsJSON), analysis.DurationMs,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to insert analysis %s: %v", analysis.ID, err)
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	for i := range actions {
		a := &actions[i]
		paramsJSON, err := json.Marshal(a.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params for action %s: %w", a.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO recommended_actions (id, analysis_id, action_type, owner, priority, reasoning, confidence,
				trigger_phrase, params, estimated_impact, estimated_gas, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, analysis.ID, a.ActionType, a.Owner, a.Priority.Ordinal(), a.Reasoning, a.Confidence,
			a.TriggerPhrase, string(paramsJSON), a.EstimatedImpact, a.EstimatedGas, string(types.StatusPending), a.CreatedAt,
		)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to insert action %s: %v", a.ID, err)
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to commit analysis %s: %v", analysis.ID, err)
		return fmt.Errorf("failed to commit: %w", err)
	}

	logging.Store("Saved analysis %s with %d actions", analysis.ID, len(actions))
	return nil
}

// GetAnalysis retrieves one analysis by id. Returns ErrNotFound when absent.
func (s *LocalStore) GetAnalysis(id string) (*types.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, agent_id, created_at, overview, conditions, risk, opportunities, capabilities_used, duration_ms
		 FROM analysis_results WHERE id = ?`, id,
	)
	analysis, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
		}
		logging.Get(logging.CategoryStore).Error("Failed to query analysis %s: %v", id, err)
		return nil, err
	}
	return analysis, nil
}

// ListAnalyses retrieves the most recent analyses for an agent, newest first.
func (s *LocalStore) ListAnalyses(agentID string, limit int) ([]*types.Analysis, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListAnalyses")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT id, agent_id, created_at, overview, conditions, risk, opportunities, capabilities_used, duration_ms
		 FROM analysis_results
		 WHERE agent_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to list analyses for %s: %v", agentID, err)
		return nil, err
	}
	defer rows.Close()

	var out []*types.Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to scan analysis row: %v", err)
			return nil, err
		}
		out = append(out, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Listed %d analyses for agent %s", len(out), agentID)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*types.Analysis, error) {
	var a types.Analysis
	var capsJSON string
	if err := row.Scan(&a.ID, &a.AgentID, &a.CreatedAt, &a.Overview, &a.Conditions, &a.Risk, &a.Opportunities, &capsJSON, &a.DurationMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(capsJSON), &a.CapabilitiesUsed); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities_used: %w", err)
	}
	return &a, nil
}
