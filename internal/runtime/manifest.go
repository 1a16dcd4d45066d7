package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"advisor/internal/logging"
	"advisor/internal/types"
)

// ManifestHost is a simulated host environment backed by a YAML manifest:
// the capability roster, per-provider context payloads, and canned dispatch
// results. It stands in for a live agent runtime in the CLI and in smoke
// tests; a real deployment supplies its own Host implementation.
type ManifestHost struct {
	mu       sync.Mutex
	caps     []types.Capability
	context  map[string]json.RawMessage
	results  map[string]types.ExecutionResult
	registry Registry
	worlds   map[string]string
	rooms    map[string]string
}

type manifestFile struct {
	Capabilities []manifestCapability      `yaml:"capabilities"`
	Context      map[string]yaml.Node      `yaml:"context"`
	Results      map[string]manifestResult `yaml:"results"`
}

type manifestCapability struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Provider    string   `yaml:"provider"`
	Aliases     []string `yaml:"aliases"`
	Examples    []string `yaml:"examples"`
}

type manifestResult struct {
	Success bool      `yaml:"success"`
	Data    yaml.Node `yaml:"data"`
	Error   string    `yaml:"error"`
}

// NewManifestHost loads a manifest and binds dispatch results to the given
// registry.
func NewManifestHost(path string, registry Registry) (*ManifestHost, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	host := &ManifestHost{
		context:  make(map[string]json.RawMessage, len(mf.Context)),
		results:  make(map[string]types.ExecutionResult, len(mf.Results)),
		registry: registry,
		worlds:   make(map[string]string),
		rooms:    make(map[string]string),
	}
	for _, c := range mf.Capabilities {
		host.caps = append(host.caps, types.Capability{
			Name:        c.Name,
			Description: c.Description,
			Provider:    c.Provider,
			Aliases:     c.Aliases,
			Examples:    c.Examples,
		})
	}
	for provider, node := range mf.Context {
		data, err := nodeToJSON(node)
		if err != nil {
			return nil, fmt.Errorf("context payload for %s: %w", provider, err)
		}
		host.context[provider] = data
	}
	for name, r := range mf.Results {
		result := types.ExecutionResult{Capability: name, Success: r.Success, Error: r.Error}
		if !r.Data.IsZero() {
			data, err := nodeToJSON(r.Data)
			if err != nil {
				return nil, fmt.Errorf("result payload for %s: %w", name, err)
			}
			result.Data = data
		}
		host.results[name] = result
	}

	logging.Boot("Manifest host loaded: %d capabilities, %d providers, %d canned results",
		len(host.caps), len(host.context), len(host.results))
	return host, nil
}

// nodeToJSON converts an arbitrary YAML value into its JSON encoding.
func nodeToJSON(node yaml.Node) (json.RawMessage, error) {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (h *ManifestHost) Capabilities(ctx context.Context) ([]types.Capability, error) {
	return h.caps, nil
}

func (h *ManifestHost) ComposeContext(ctx context.Context) (map[string]json.RawMessage, error) {
	return h.context, nil
}

// Dispatch resolves immediately from the canned results. Unlisted
// capabilities succeed with an acknowledgment payload.
func (h *ManifestHost) Dispatch(ctx context.Context, correlationID, roomID, trigger, capability string) error {
	h.mu.Lock()
	result, ok := h.results[capability]
	h.mu.Unlock()
	if !ok {
		result = types.ExecutionResult{
			Capability: capability,
			Success:    true,
			Data:       json.RawMessage(fmt.Sprintf(`{"acknowledged": %q}`, trigger)),
		}
	}
	h.registry.Put(correlationID, result)
	return nil
}

func (h *ManifestHost) EnsureWorld(ctx context.Context, worldID, agentID, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.worlds[worldID] = agentID
	return nil
}

func (h *ManifestHost) EnsureRoom(ctx context.Context, roomID, worldID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.worlds[worldID]; !ok {
		return fmt.Errorf("world %s does not exist", worldID)
	}
	h.rooms[roomID] = worldID
	return nil
}

func (h *ManifestHost) DeleteRoom(ctx context.Context, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
	return nil
}
