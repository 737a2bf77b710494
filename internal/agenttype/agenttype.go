// Package agenttype defines the agent-type FQN and the registry the Config
// Validator resolves it against (spec.md §3, §4.6).
package agenttype

import (
	"fmt"
	"strings"
)

// FQN is an opaque (namespace, name, version) triple rendered as
// "namespace/name:version". The core only tests equality and passes it
// through to the sub-agent builder — it never interprets the fields.
type FQN struct {
	Namespace string
	Name      string
	Version   string
}

// String renders the canonical "namespace/name:version" form.
func (f FQN) String() string {
	return fmt.Sprintf("%s/%s:%s", f.Namespace, f.Name, f.Version)
}

// Parse parses "namespace/name:version" into an FQN.
func Parse(s string) (FQN, error) {
	slash := strings.IndexByte(s, '/')
	colon := strings.LastIndexByte(s, ':')
	if slash < 0 || colon < 0 || colon < slash {
		return FQN{}, fmt.Errorf("agent type %q: want namespace/name:version", s)
	}
	f := FQN{
		Namespace: s[:slash],
		Name:      s[slash+1 : colon],
		Version:   s[colon+1:],
	}
	if f.Namespace == "" || f.Name == "" || f.Version == "" {
		return FQN{}, fmt.Errorf("agent type %q: namespace, name and version must be non-empty", s)
	}
	return f, nil
}

// UnmarshalYAML implements yaml.Unmarshaler so FQN can be embedded directly
// in SubAgentConfig as a plain scalar in YAML documents.
func (f *FQN) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f FQN) MarshalYAML() (any, error) {
	return f.String(), nil
}

// Definition describes the per-type invariants the Config Validator checks:
// which fields a SubAgentConfig's opaque values must carry for this type.
type Definition struct {
	FQN            FQN
	RequiredFields []string
}

// Registry resolves an FQN to its Definition. The core only asks it
// questions; it never mutates the registry.
type Registry interface {
	Get(fqn FQN) (Definition, bool)
}

// StaticRegistry is a Registry backed by an in-memory map, typically
// loaded once from a local YAML definitions file at startup.
type StaticRegistry struct {
	defs map[FQN]Definition
}

// NewStaticRegistry builds a StaticRegistry from a list of definitions.
func NewStaticRegistry(defs []Definition) *StaticRegistry {
	m := make(map[FQN]Definition, len(defs))
	for _, d := range defs {
		m[d.FQN] = d
	}
	return &StaticRegistry{defs: m}
}

// Get implements Registry.
func (r *StaticRegistry) Get(fqn FQN) (Definition, bool) {
	d, ok := r.defs[fqn]
	return d, ok
}
