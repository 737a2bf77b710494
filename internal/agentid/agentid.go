// Package agentid defines the opaque identifier used throughout the control
// plane to name the control-plane instance itself and every sub-agent it
// manages.
package agentid

import (
	"fmt"
	"regexp"
)

// ID is an opaque, comparable, hashable identifier drawn from
// [A-Za-z0-9_-]+. It is safe to use as a map key.
type ID string

var pattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Self is the reserved ID identifying the control plane's own agent
// record in the Hash Store. It is the one ID the core both produces and
// consumes for itself (spec.md §3, §6).
const Self ID = "agent-control"

// Parse validates a raw string against the AgentID grammar.
func Parse(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("agent id: empty")
	}
	if !pattern.MatchString(s) {
		return "", fmt.Errorf("agent id %q: must match [A-Za-z0-9_-]+", s)
	}
	return ID(s), nil
}

// String implements fmt.Stringer.
func (i ID) String() string {
	return string(i)
}
