// Package subagent defines the C4 Sub-Agent Handle contract: the
// reconciler's view of a single managed sub-agent, independent of how that
// sub-agent is actually hosted (local process, Kubernetes custom resource,
// ...). Concrete builders live in hostprocess and k8scr.
package subagent

import (
	"context"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

// NotStarted is a built-but-not-yet-running sub-agent. Start is the only
// way to obtain a Started handle; a NotStarted that is never started holds
// no live resources and needs no cleanup.
type NotStarted interface {
	// Start brings the sub-agent up and returns a handle to the running
	// instance. On error, the NotStarted value must not be reused.
	Start(ctx context.Context) (Started, error)
}

// Started is a running sub-agent. Exactly one Started handle exists per
// live sub-agent at any time (spec.md §2 C5's at-most-one-handle
// invariant); Stop is idempotent-safe to call once and must release every
// resource the handle owns before returning.
type Started interface {
	// Stop tears the sub-agent down. After Stop returns (even with an
	// error) the handle must be treated as dead.
	Stop(ctx context.Context) error
	// ConfigHash is the content hash of the subagentconfig.Config this
	// handle was built from, used by the reconciler to detect drift
	// without re-deriving it from the handle's internals.
	ConfigHash() string
	// AgentType is the AgentTypeFQN this handle was built from (spec.md
	// §4.4), used to attach the sub-agent's type to health events relayed
	// on the outbound Control Plane stream.
	AgentType() agenttype.FQN
}

// Builder constructs a NotStarted handle for a sub-agent from its desired
// config. events is the sink the built handle (and anything it spawns,
// e.g. a health-watching goroutine) publishes SubAgentEvents to; a
// Builder never reads from it.
type Builder interface {
	Build(id agentid.ID, cfg subagentconfig.Config, events chan<- eventbus.SubAgentEvent) (NotStarted, error)
}
