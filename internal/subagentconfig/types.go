// Package subagentconfig defines the desired-state data model: a single
// sub-agent's config and the full per-node desired topology (spec.md §3).
package subagentconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
)

// Config is `{ agent_type, <opaque values> }`. Values carries whatever
// agent-specific fields the YAML document had beyond agent_type; the core
// forwards them unchanged to the builder and only ever compares them for
// structural equality.
type Config struct {
	AgentType agenttype.FQN
	Values    map[string]any
}

// Equal reports whether two Configs are structurally identical. The
// Reconciler does not call it; its "unchanged" branch compares Hash values
// instead.
func (c Config) Equal(other Config) bool {
	if c.AgentType != other.AgentType {
		return false
	}
	return reflect.DeepEqual(normalize(c.Values), normalize(other.Values))
}

// Hash returns a stable content hash of the Config, used by the Reconciler
// and Hash Store to detect drift without comparing full structures
// (spec.md §4.2). encoding/json sorts map keys, so the digest is
// independent of map iteration order.
func (c Config) Hash() string {
	// json.Marshal only fails on unsupported types (channels, funcs) which
	// never occur in a document decoded from YAML/JSON.
	data, _ := json.Marshal(struct {
		AgentType agenttype.FQN `json:"agent_type"`
		Values    map[string]any `json:"values"`
	}{c.AgentType, c.Values})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize recursively copies nested maps/slices so DeepEqual compares
// values decoded through different paths (YAML file vs. remote overlay)
// the same way, regardless of map growth order or slice capacity.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Dynamic is `{ agents: mapping AgentID -> Config }`, the desired topology
// for a node. Iteration order is irrelevant by construction (it's a map).
type Dynamic struct {
	Agents map[agentid.ID]Config
}

// Equal reports whether two Dynamic configs describe the same desired
// topology (same agent set, each with structurally-equal Config).
func (d Dynamic) Equal(other Dynamic) bool {
	if len(d.Agents) != len(other.Agents) {
		return false
	}
	for id, cfg := range d.Agents {
		oc, ok := other.Agents[id]
		if !ok || !cfg.Equal(oc) {
			return false
		}
	}
	return true
}
