// Package collection implements the C5 Sub-Agent Collection: the
// Reconciler's and Event Processor's shared registry of currently-running
// sub-agents, keyed by AgentID, enforcing that at most one Started handle
// ever exists per AgentID (spec.md §2 C5).
package collection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
)

// Collection is safe for concurrent use.
type Collection struct {
	mu      sync.Mutex
	running map[agentid.ID]subagent.Started
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{running: make(map[agentid.ID]subagent.Started)}
}

// Insert registers a newly-started handle for id. It returns an error if a
// handle for id is already registered, since replacing one silently would
// leak the old handle's resources.
func (c *Collection) Insert(id agentid.ID, handle subagent.Started) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.running[id]; exists {
		return fmt.Errorf("collection: sub-agent %s is already running", id)
	}
	c.running[id] = handle
	return nil
}

// Get returns the handle for id, if any.
func (c *Collection) Get(id agentid.ID) (subagent.Started, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.running[id]
	return h, ok
}

// AgentType returns the AgentTypeFQN of the running handle for id, if any,
// used by the Health Reporter to attach a sub-agent's type to the health
// events it relays (spec.md §4.4, §4.8).
func (c *Collection) AgentType(id agentid.ID) (agenttype.FQN, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.running[id]
	if !ok {
		return agenttype.FQN{}, false
	}
	return h.AgentType(), true
}

// StopRemove stops the handle for id (if present) and removes it from the
// collection regardless of whether Stop returned an error, so a failing
// Stop cannot wedge the collection into thinking a dead sub-agent is still
// running.
func (c *Collection) StopRemove(ctx context.Context, id agentid.ID) error {
	c.mu.Lock()
	h, ok := c.running[id]
	delete(c.running, id)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Stop(ctx)
}

// IDs returns the AgentIDs currently registered, sorted for deterministic
// iteration in callers like the Reconciler's tie-break ordering.
func (c *Collection) IDs() []agentid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]agentid.ID, 0, len(c.running))
	for id := range c.running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of currently-running sub-agents.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

// StopAll stops and removes every running sub-agent, continuing past
// individual Stop errors so shutdown always attempts to tear down the
// whole fleet, and returns the first error encountered (if any).
func (c *Collection) StopAll(ctx context.Context) error {
	var first error
	for _, id := range c.IDs() {
		if err := c.StopRemove(ctx, id); err != nil && first == nil {
			first = fmt.Errorf("collection: stopping %s: %w", id, err)
		}
	}
	return first
}
