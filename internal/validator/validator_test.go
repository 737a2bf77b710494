package validator

import (
	"testing"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

func testRegistry() agenttype.Registry {
	infra := agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"}
	return agenttype.NewStaticRegistry([]agenttype.Definition{
		{FQN: infra, RequiredFields: []string{"command"}},
	})
}

func TestValidate_OK(t *testing.T) {
	reg := testRegistry()
	d := subagentconfig.Dynamic{Agents: map[agentid.ID]subagentconfig.Config{
		"infra-agent": {
			AgentType: agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"},
			Values:    map[string]any{"command": "/bin/infra"},
		},
	}}

	if err := Validate(d, reg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_UnknownAgentType(t *testing.T) {
	reg := testRegistry()
	d := subagentconfig.Dynamic{Agents: map[agentid.ID]subagentconfig.Config{
		"mystery-agent": {
			AgentType: agenttype.FQN{Namespace: "acme", Name: "widget", Version: "1.0.0"},
		},
	}}

	err := Validate(d, reg)
	if err == nil {
		t.Fatalf("expected error for unknown agent type")
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	reg := testRegistry()
	d := subagentconfig.Dynamic{Agents: map[agentid.ID]subagentconfig.Config{
		"infra-agent": {
			AgentType: agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"},
			Values:    map[string]any{},
		},
	}}

	err := Validate(d, reg)
	var ve *Error
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !asError(err, &ve) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(ve.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(ve.Violations), ve.Violations)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
