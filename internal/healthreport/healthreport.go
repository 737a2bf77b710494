// Package healthreport implements the C9 Health Reporter: it turns a
// SubAgentEvent health transition into a management-client SetHealth call
// and a published ControlPlaneEvent, the same "record, then notify"
// two-step the teacher's healthcheck.Monitor.recordResult follows for its
// own restart-threshold bookkeeping (internal/healthcheck/checker.go).
package healthreport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient"
)

// AgentTypeLookup resolves the AgentTypeFQN a running sub-agent was built
// from, so its health events can be relayed with their type attached
// (spec.md §3, §4.4). Implemented by collection.Collection.
type AgentTypeLookup interface {
	AgentType(id agentid.ID) (agenttype.FQN, bool)
}

// Reporter tracks the last-known health of every sub-agent (and the
// control plane itself) and keeps the management server and the outbound
// event stream in sync with it.
type Reporter struct {
	mgmt     mgmtclient.Client
	outbound *eventbus.Bus[eventbus.ControlPlaneEvent]
	types    AgentTypeLookup
	logger   *slog.Logger

	mu    sync.Mutex
	state map[agentid.ID]health.Report
}

// New creates a Reporter. outbound is the bus the core's C1 Event Bus
// uses for its Control Plane stream. types resolves each sub-agent's type
// for attaching to relayed events; it may be nil, in which case relayed
// events carry a zero-value AgentTypeFQN.
func New(mgmt mgmtclient.Client, outbound *eventbus.Bus[eventbus.ControlPlaneEvent], types AgentTypeLookup, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		mgmt:     mgmt,
		outbound: outbound,
		types:    types,
		logger:   logger,
		state:    make(map[agentid.ID]health.Report),
	}
}

// Report processes a sub-agent's health transition: it is recorded,
// pushed to the management server, and republished as a ControlPlaneEvent.
// A SetHealth failure is logged and otherwise ignored — it must never
// suppress the ControlPlaneEvent publish, since internal observers must
// stay correct even when the management server is unreachable.
func (r *Reporter) Report(ctx context.Context, ev eventbus.SubAgentEvent) {
	var report health.Report
	var kind eventbus.ControlPlaneEventKind

	switch ev.Kind {
	case eventbus.SubAgentBecameHealthy:
		report = health.Report{Healthy: &ev.Healthy, StartTime: ev.StartTime}
		kind = eventbus.ControlPlaneBecameHealthy
	case eventbus.SubAgentBecameUnhealthy:
		report = health.Report{Unhealthy: &ev.Unhealthy, StartTime: ev.StartTime}
		kind = eventbus.ControlPlaneBecameUnhealthy
	default:
		return
	}

	r.mu.Lock()
	r.state[ev.AgentID] = report
	r.mu.Unlock()

	if r.mgmt != nil {
		if err := r.mgmt.SetHealth(ctx, ev.AgentID, report); err != nil {
			r.logger.Warn("healthreport: reporting health to management server failed", "agent_id", ev.AgentID, "error", err)
		}
	}

	var fqn agenttype.FQN
	if r.types != nil {
		fqn, _ = r.types.AgentType(ev.AgentID)
	}

	r.publish(eventbus.ControlPlaneEvent{
		Kind:      kind,
		AgentID:   ev.AgentID,
		AgentType: fqn,
		Healthy:   ev.Healthy,
		Unhealthy: ev.Unhealthy,
		StartTime: ev.StartTime,
	})
}

// ReportSelf reports the control plane's own health (agentid.Self), used
// at bootstrap once every sub-agent has been brought up.
func (r *Reporter) ReportSelf(ctx context.Context, report health.Report) {
	r.mu.Lock()
	r.state[agentid.Self] = report
	r.mu.Unlock()

	if r.mgmt != nil {
		if err := r.mgmt.SetHealth(ctx, agentid.Self, report); err != nil {
			r.logger.Warn("healthreport: reporting self health to management server failed", "error", err)
		}
	}

	kind := eventbus.ControlPlaneBecameHealthy
	if !report.IsHealthy() {
		kind = eventbus.ControlPlaneBecameUnhealthy
	}
	ev := eventbus.ControlPlaneEvent{
		Kind:      kind,
		AgentID:   agentid.Self,
		AgentType: agenttype.FQN{},
		StartTime: report.StartTime,
	}
	if report.Healthy != nil {
		ev.Healthy = *report.Healthy
	}
	if report.Unhealthy != nil {
		ev.Unhealthy = *report.Unhealthy
	}
	r.publish(ev)
}

// Get returns the last-known health report for id, if any.
func (r *Reporter) Get(id agentid.ID) (health.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.state[id]
	return rep, ok
}

func (r *Reporter) publish(ev eventbus.ControlPlaneEvent) {
	if err := r.outbound.Publish(ev); err != nil {
		r.logger.Warn("healthreport: publishing control plane event failed", "kind", ev.Kind, "error", err)
	}
}
