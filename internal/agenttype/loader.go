package agenttype

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionDoc mirrors the on-disk YAML shape for a registry file:
//
//	types:
//	  - fqn: newrelic/com.newrelic.infrastructure:0.0.1
//	    required_fields: [license_key]
type definitionDoc struct {
	Types []struct {
		FQN            string   `yaml:"fqn"`
		RequiredFields []string `yaml:"required_fields"`
	} `yaml:"types"`
}

// LoadStaticRegistry reads a registry definitions file from disk.
func LoadStaticRegistry(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent type registry %s: %w", path, err)
	}

	var doc definitionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing agent type registry %s: %w", path, err)
	}

	defs := make([]Definition, 0, len(doc.Types))
	for _, t := range doc.Types {
		fqn, err := Parse(t.FQN)
		if err != nil {
			return nil, fmt.Errorf("agent type registry %s: %w", path, err)
		}
		defs = append(defs, Definition{FQN: fqn, RequiredFields: t.RequiredFields})
	}

	return NewStaticRegistry(defs), nil
}
