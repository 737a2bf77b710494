// Package reconciler implements the C7 Reconciler: it diffs the desired
// topology against the running Sub-Agent Collection and converges the two,
// in the order and with the failure semantics spec.md §4.7 requires
// (creates/updates before removes; bail on the first error with no
// rollback of work already applied).
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/collection"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

// ActionType describes the kind of reconciliation action.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionRemove ActionType = "remove"
)

// Action represents a single reconciliation step.
type Action struct {
	Type   ActionType
	ID     agentid.ID
	Config subagentconfig.Config
}

// Reconciler compares desired state from the Dynamic Config Store with the
// Sub-Agent Collection's running state and converges the two.
type Reconciler struct {
	builder  subagent.Builder
	running  *collection.Collection
	hashes   hashstore.Store
	subEvent chan<- eventbus.SubAgentEvent
	cpEvent  chan<- eventbus.ControlPlaneEvent
	logger   *slog.Logger
}

// New creates a Reconciler. subEvent is the sink handles built by builder
// publish their own health transitions to; cpEvent receives the
// Reconciler's own lifecycle events (e.g. SubAgentRemoved).
func New(
	builder subagent.Builder,
	running *collection.Collection,
	hashes hashstore.Store,
	subEvent chan<- eventbus.SubAgentEvent,
	cpEvent chan<- eventbus.ControlPlaneEvent,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		builder:  builder,
		running:  running,
		hashes:   hashes,
		subEvent: subEvent,
		cpEvent:  cpEvent,
		logger:   logger,
	}
}

// Plan computes the actions needed to converge the running collection on
// desired. Creates and updates are ordered before removes, and within each
// group actions are ordered by AgentID, so Plan's output (and therefore
// Apply's effects) is deterministic given the same inputs.
func (r *Reconciler) Plan(desired subagentconfig.Dynamic) []Action {
	var creates, updates, removes []Action

	for id, cfg := range desired.Agents {
		handle, running := r.running.Get(id)
		switch {
		case !running:
			creates = append(creates, Action{Type: ActionCreate, ID: id, Config: cfg})
		case handle.ConfigHash() != cfg.Hash():
			updates = append(updates, Action{Type: ActionUpdate, ID: id, Config: cfg})
		}
	}

	for _, id := range r.running.IDs() {
		if _, wanted := desired.Agents[id]; !wanted {
			removes = append(removes, Action{Type: ActionRemove, ID: id})
		}
	}

	sortByID(creates)
	sortByID(updates)
	sortByID(removes)

	actions := make([]Action, 0, len(creates)+len(updates)+len(removes))
	actions = append(actions, creates...)
	actions = append(actions, updates...)
	actions = append(actions, removes...)
	return actions
}

func sortByID(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
}

// Apply executes actions in order, stopping at the first error without
// rolling back actions already applied (spec.md §4.7, §9): a partially
// converged fleet is left exactly as far along as it got, and the next
// reconcile pass will pick up where this one stopped.
func (r *Reconciler) Apply(ctx context.Context, actions []Action) error {
	for _, action := range actions {
		var err error
		switch action.Type {
		case ActionCreate:
			err = r.create(ctx, action.ID, action.Config)
		case ActionUpdate:
			err = r.update(ctx, action.ID, action.Config)
		case ActionRemove:
			err = r.remove(ctx, action.ID)
		}
		if err != nil {
			return fmt.Errorf("reconciler: %s %s: %w", action.Type, action.ID, err)
		}
	}
	return nil
}

// Reconcile is a convenience method that plans and applies in one step.
func (r *Reconciler) Reconcile(ctx context.Context, desired subagentconfig.Dynamic) error {
	actions := r.Plan(desired)
	if len(actions) == 0 {
		r.logger.Debug("reconciler: no changes needed, state is converged")
		return nil
	}

	r.logger.Info("reconciler: applying plan",
		"creates", countActions(actions, ActionCreate),
		"updates", countActions(actions, ActionUpdate),
		"removes", countActions(actions, ActionRemove),
	)
	return r.Apply(ctx, actions)
}

func (r *Reconciler) create(ctx context.Context, id agentid.ID, cfg subagentconfig.Config) error {
	hash := cfg.Hash()
	if err := r.hashes.Save(id, hashstore.NewApplying(hash)); err != nil {
		r.logger.Warn("reconciler: persisting applying hash failed", "agent_id", id, "error", err)
	}

	notStarted, err := r.builder.Build(id, cfg, r.subEvent)
	if err != nil {
		r.failHash(id, hash, err)
		return fmt.Errorf("building: %w", err)
	}

	started, err := notStarted.Start(ctx)
	if err != nil {
		r.failHash(id, hash, err)
		return fmt.Errorf("starting: %w", err)
	}

	if err := r.running.Insert(id, started); err != nil {
		_ = started.Stop(ctx)
		r.failHash(id, hash, err)
		return err
	}

	if err := r.hashes.Save(id, hashstore.NewApplying(hash).Applied()); err != nil {
		r.logger.Warn("reconciler: persisting applied hash failed", "agent_id", id, "error", err)
	}
	r.logger.Info("reconciler: sub-agent created", "agent_id", id)
	return nil
}

// update replaces a running sub-agent whose config has drifted: stop the
// old handle, then create the new one. There is no in-place config push —
// spec.md's sub-agents only ever learn their config at build time.
func (r *Reconciler) update(ctx context.Context, id agentid.ID, cfg subagentconfig.Config) error {
	if err := r.running.StopRemove(ctx, id); err != nil {
		r.logger.Warn("reconciler: stopping previous sub-agent during update failed", "agent_id", id, "error", err)
	}
	return r.create(ctx, id, cfg)
}

// remove publishes the SubAgentRemoved event before tearing the handle
// down, so observers never see a removal the handle itself outlives
// (spec.md §4.7).
func (r *Reconciler) remove(ctx context.Context, id agentid.ID) error {
	if r.cpEvent != nil {
		r.cpEvent <- eventbus.ControlPlaneEvent{
			Kind:    eventbus.ControlPlaneSubAgentRemoved,
			AgentID: id,
		}
	}
	if err := r.running.StopRemove(ctx, id); err != nil {
		return fmt.Errorf("stopping: %w", err)
	}
	r.logger.Info("reconciler: sub-agent removed", "agent_id", id)
	return nil
}

func (r *Reconciler) failHash(id agentid.ID, hash string, cause error) {
	if err := r.hashes.Save(id, hashstore.NewApplying(hash).FailedWith(cause.Error())); err != nil {
		r.logger.Warn("reconciler: persisting failed hash failed", "agent_id", id, "error", err)
	}
}

func countActions(actions []Action, t ActionType) int {
	n := 0
	for _, a := range actions {
		if a.Type == t {
			n++
		}
	}
	return n
}
