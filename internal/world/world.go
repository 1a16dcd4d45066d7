// Package world manages agent world and room lifecycle in the host
// environment. Worlds are long-lived containers keyed deterministically by
// agent identity; rooms are ephemeral scratch spaces created per capability
// execution and torn down when the run finishes.
package world

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"advisor/internal/logging"
	"advisor/internal/runtime"
)

// worldNamespace seeds deterministic world id derivation. Fixed so the same
// agent always maps to the same world across process restarts.
var worldNamespace = uuid.MustParse("7a1e0a54-92c3-4c6f-9d05-3be1f9a4d8c2")

// Manager handles world and room lifecycle against a host environment.
type Manager struct {
	host      runtime.Host
	worldName string
	cleanup   bool
}

// NewManager creates a lifecycle manager. worldName is the display name used
// when a world must be created; cleanup controls whether rooms are deleted
// after use.
func NewManager(host runtime.Host, worldName string, cleanup bool) *Manager {
	if worldName == "" {
		worldName = "advisor"
	}
	return &Manager{host: host, worldName: worldName, cleanup: cleanup}
}

// WorldIDFor derives the deterministic world id for an agent. Pure function
// of the agent id, so repeated runs reuse the same world.
func WorldIDFor(agentID string) string {
	return uuid.NewSHA1(worldNamespace, []byte(agentID)).String()
}

// EnsureAgentWorld resolves the agent's world id and makes sure the world
// exists in the host environment. Safe to call on every run; creation is
// idempotent on the host side.
func (m *Manager) EnsureAgentWorld(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("agent id is required")
	}
	worldID := WorldIDFor(agentID)
	if err := m.host.EnsureWorld(ctx, worldID, agentID, m.worldName); err != nil {
		return "", fmt.Errorf("ensure world for agent %s: %w", agentID, err)
	}
	logging.World("ensured world %s for agent %s", worldID, agentID)
	return worldID, nil
}

// NewRoom creates a fresh room in the given world and returns its id.
func (m *Manager) NewRoom(ctx context.Context, worldID string) (string, error) {
	roomID := uuid.NewString()
	if err := m.host.EnsureRoom(ctx, roomID, worldID); err != nil {
		return "", fmt.Errorf("create room in world %s: %w", worldID, err)
	}
	logging.World("created room %s in world %s", roomID, worldID)
	return roomID, nil
}

// Cleanup deletes the given rooms, best effort. Individual failures are
// logged and skipped so one stuck room never blocks the rest. Disabled
// entirely when the manager was built with cleanup=false.
func (m *Manager) Cleanup(ctx context.Context, roomIDs []string) {
	if !m.cleanup {
		return
	}
	for _, id := range roomIDs {
		if id == "" {
			continue
		}
		if err := m.host.DeleteRoom(ctx, id); err != nil {
			logging.WorldWarn("failed to delete room %s: %v", id, err)
			continue
		}
		logging.World("deleted room %s", id)
	}
}
