package subagentconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
)

// document mirrors the on-disk shape:
//
//	agents:
//	  infra-agent:
//	    agent_type: newrelic/com.newrelic.infrastructure:0.0.1
//	    <opaque fields...>
type document struct {
	Agents map[string]map[string]any `yaml:"agents"`
}

// Parse parses a Dynamic desired config from a raw YAML document. It is the
// only place AgentID and AgentTypeFQN grammar is enforced against
// remote-delivered or local-file input (spec.md's RemoteConfig value and the
// Dynamic Config Store's local baseline both flow through this function).
func Parse(data []byte) (Dynamic, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Dynamic{}, fmt.Errorf("parsing dynamic config: %w", err)
	}

	agents := make(map[agentid.ID]Config, len(doc.Agents))
	for rawID, fields := range doc.Agents {
		id, err := agentid.Parse(rawID)
		if err != nil {
			return Dynamic{}, fmt.Errorf("dynamic config: %w", err)
		}

		rawType, ok := fields["agent_type"]
		if !ok {
			return Dynamic{}, fmt.Errorf("dynamic config: agent %q missing agent_type", rawID)
		}
		typeStr, ok := rawType.(string)
		if !ok {
			return Dynamic{}, fmt.Errorf("dynamic config: agent %q agent_type must be a string", rawID)
		}
		fqn, err := agenttype.Parse(typeStr)
		if err != nil {
			return Dynamic{}, fmt.Errorf("dynamic config: agent %q: %w", rawID, err)
		}

		values := make(map[string]any, len(fields))
		for k, v := range fields {
			if k == "agent_type" {
				continue
			}
			values[k] = v
		}

		agents[id] = Config{AgentType: fqn, Values: values}
	}

	return Dynamic{Agents: agents}, nil
}
