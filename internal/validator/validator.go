// Package validator implements the C6 Config Validator: a pure structural
// check of a Dynamic config against the known agent-type registry,
// entirely independent of any running state (spec.md §2 C6, §4.6).
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

// Error reports every violation found while validating a Dynamic config.
// It is never partial: Validate always finishes checking every agent
// before returning, so a caller sees the full set of problems at once.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid dynamic config: %s", strings.Join(e.Violations, "; "))
}

// Validate checks that every agent in d names a known agent type in
// registry and supplies every field that type's Definition requires. It
// returns nil if d is structurally valid.
func Validate(d subagentconfig.Dynamic, registry agenttype.Registry) error {
	var violations []string

	ids := make([]agentid.ID, 0, len(d.Agents))
	for id := range d.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		cfg := d.Agents[id]

		def, ok := registry.Get(cfg.AgentType)
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: unknown agent type %s", id, cfg.AgentType))
			continue
		}

		for _, field := range def.RequiredFields {
			if _, present := cfg.Values[field]; !present {
				violations = append(violations, fmt.Sprintf("%s: missing required field %q for agent type %s", id, field, cfg.AgentType))
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &Error{Violations: violations}
}
