// Package processor implements the C8 Event Processor: the main loop that
// multiplexes the Application, Management and Sub-Agent streams (spec.md
// §4.1, §4.8), bootstraps the fleet on startup, and carries out the
// remote-config delivery algorithm; the Control Plane stream is outbound
// only and is written to, never read. Its shape is the teacher's own
// Agent.Run ticker loop (internal/agent/agent.go) with the ticker replaced
// by a four-armed select over those three streams plus ctx.Done.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/collection"
	"github.com/fleetcontrol/agentcontrol/internal/dynamicconfig"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/healthreport"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient"
	"github.com/fleetcontrol/agentcontrol/internal/reconciler"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/validator"
)

// orphanCollector is implemented by Sub-Agent builders that represent a
// sub-agent as an externally-visible resource that can outlive a crash
// between its creation and the Sub-Agent Collection recording it (the
// Kubernetes custom-resource builder, concretely). A builder that doesn't
// implement it — the host-process builder — is simply skipped.
type orphanCollector interface {
	CollectOrphans(ctx context.Context, want map[agentid.ID]struct{}) error
}

// Processor owns the event loop and every collaborator it drives.
type Processor struct {
	configStore *dynamicconfig.Store
	registry    agenttype.Registry
	hashes      hashstore.Store
	running     *collection.Collection
	builder     subagent.Builder
	reconciler  *reconciler.Reconciler
	reporter    *healthreport.Reporter
	mgmt        mgmtclient.Client // nil if running without a management connection

	app      *eventbus.Bus[eventbus.ApplicationEvent]
	subAgent *eventbus.Bus[eventbus.SubAgentEvent]

	logger *slog.Logger
}

// Deps bundles the Processor's collaborators. mgmt may be nil, in which
// case the Management stream is substituted with eventbus.NeverReady and
// remote config delivery never occurs — the fleet then runs purely off
// its local baseline.
type Deps struct {
	ConfigStore *dynamicconfig.Store
	Registry    agenttype.Registry
	Hashes      hashstore.Store
	Running     *collection.Collection
	Builder     subagent.Builder
	Mgmt        mgmtclient.Client
	App         *eventbus.Bus[eventbus.ApplicationEvent]
	SubAgent    *eventbus.Bus[eventbus.SubAgentEvent]
	ControlPlane *eventbus.Bus[eventbus.ControlPlaneEvent]
	Logger      *slog.Logger
}

// New wires a Processor and its Reconciler/Health Reporter from deps.
func New(d Deps) *Processor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cpSink chan<- eventbus.ControlPlaneEvent
	if d.ControlPlane != nil {
		cpSink = d.ControlPlane.ProducerChan()
	}

	rec := reconciler.New(d.Builder, d.Running, d.Hashes, d.SubAgent.ProducerChan(), cpSink, logger)

	var reporter *healthreport.Reporter
	if d.ControlPlane != nil {
		reporter = healthreport.New(d.Mgmt, d.ControlPlane, d.Running, logger)
	}

	return &Processor{
		configStore: d.ConfigStore,
		registry:    d.Registry,
		hashes:      d.Hashes,
		running:     d.Running,
		builder:     d.Builder,
		reconciler:  rec,
		reporter:    reporter,
		mgmt:        d.Mgmt,
		app:         d.App,
		subAgent:    d.SubAgent,
		logger:      logger,
	}
}

// Reporter returns the Health Reporter this Processor drives, so the
// status API can read the same last-known-health state the processor
// itself maintains rather than tracking a second, divergent copy of it.
func (p *Processor) Reporter() *healthreport.Reporter {
	return p.reporter
}

// Run bootstraps the fleet (spec.md §4.8 bootstrap sequence) and then
// multiplexes the event streams until ctx is cancelled or an
// ApplicationEvent requests a stop.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.bootstrap(ctx); err != nil {
		return fmt.Errorf("processor: bootstrap: %w", err)
	}

	mgmtEvents := eventbus.NeverReady[eventbus.ManagementEvent]()
	if p.mgmt != nil {
		mgmtEvents = p.mgmt.Events()
	}

	for {
		select {
		case <-ctx.Done():
			p.shutdown(context.Background())
			return ctx.Err()

		case ev := <-p.app.Recv():
			if ev.StopRequested {
				p.logger.Info("processor: stop requested")
				p.shutdown(ctx)
				return nil
			}

		case ev := <-mgmtEvents:
			p.handleManagement(ctx, ev)

		case ev := <-p.subAgent.Recv():
			p.handleSubAgent(ctx, ev)
		}
	}
}

// bootstrap recovers any in-flight hash state, loads the effective desired
// config, validates it, brings up every desired sub-agent, and reports the
// control plane itself healthy (spec.md §4.8 bootstrap sequence).
func (p *Processor) bootstrap(ctx context.Context) error {
	p.recoverOwnHash(ctx)

	desired, err := p.configStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading effective config: %w", err)
	}

	if err := validator.Validate(desired, p.registry); err != nil {
		return fmt.Errorf("validating effective config: %w", err)
	}

	if collector, ok := p.builder.(orphanCollector); ok {
		want := make(map[agentid.ID]struct{}, len(desired.Agents))
		for id := range desired.Agents {
			want[id] = struct{}{}
		}
		if err := collector.CollectOrphans(ctx, want); err != nil {
			p.logger.Warn("processor: collecting orphaned sub-agent resources failed", "error", err)
		}
	}

	if err := p.reconciler.Reconcile(ctx, desired); err != nil {
		return fmt.Errorf("bootstrap reconcile: %w", err)
	}

	if p.reporter != nil {
		p.reporter.ReportSelf(ctx, health.Report{
			Healthy:   &health.Healthy{StatusText: "bootstrap complete"},
			StartTime: time.Now(),
		})
	}
	return nil
}

// recoverOwnHash implements spec.md §4.8 bootstrap step 1 (end-to-end
// scenario 5, "pre-applied hash recovery"): a hash left Applying for the
// control plane's own AgentID means the process crashed between receiving
// a remote config and reporting its outcome. Since bootstrap's reconcile
// is about to bring the fleet to the matching desired state regardless,
// the crash-interrupted delivery is simply recorded as Applied rather than
// redelivered or left stuck.
func (p *Processor) recoverOwnHash(ctx context.Context) {
	h, ok, err := p.hashes.Get(agentid.Self)
	if err != nil {
		p.logger.Warn("processor: loading persisted control-plane hash failed", "error", err)
		return
	}
	if !ok || h.State != hashstore.Applying {
		return
	}

	applied := h.Applied()
	if err := p.hashes.Save(agentid.Self, applied); err != nil {
		p.logger.Warn("processor: persisting recovered control-plane hash failed", "error", err)
		return
	}
	if p.mgmt != nil {
		if err := p.mgmt.ReportRemoteConfigStatus(ctx, agentid.Self, applied); err != nil {
			p.logger.Warn("processor: reporting recovered control-plane hash failed", "error", err)
		}
	}
}

// shutdown stops every running sub-agent and then releases the management
// connection. It sends no health report of its own.
func (p *Processor) shutdown(ctx context.Context) {
	if err := p.running.StopAll(ctx); err != nil {
		p.logger.Warn("processor: error stopping sub-agents during shutdown", "error", err)
	}
	if p.mgmt != nil {
		if err := p.mgmt.Stop(ctx); err != nil {
			p.logger.Warn("processor: error stopping management client", "error", err)
		}
	}
}

func (p *Processor) handleSubAgent(ctx context.Context, ev eventbus.SubAgentEvent) {
	if p.reporter != nil {
		p.reporter.Report(ctx, ev)
	}
}

func (p *Processor) handleManagement(ctx context.Context, ev eventbus.ManagementEvent) {
	switch ev.Kind {
	case eventbus.ManagementRemoteConfigReceived:
		p.handleRemoteConfig(ctx, ev.RemoteConfig)
	case eventbus.ManagementConnected, eventbus.ManagementConnectFailed:
		// Connection lifecycle events are only logged: no
		// ControlPlaneOpAMPConnected or ControlPlaneOpAMPConnectFailed
		// event is published for them.
		p.logger.Debug("processor: management connection event", "kind", ev.Kind)
	}
}

// handleRemoteConfig implements spec.md §4.8's remote-config delivery
// algorithm:
//  1. compute what the effective config would be if the delivered
//     config_map entry replaced the overlay (an empty/absent entry means
//     "revert to local baseline"), without touching the overlay yet;
//  2. validate that candidate effective config;
//  3. reconcile the fleet onto it;
//  4. only once reconcile succeeds, commit the document as the new overlay
//     (or delete it, for a revert) — step 7's "config_store.store(v)" runs
//     strictly after a successful apply, so a config that fails validation
//     or reconcile never becomes the persisted overlay a future bootstrap
//     would reload and fail on again;
//  5. report the outcome hash back to the management server, Applied on
//     success or Failed with the error on any step's failure.
//
// Validation and reconcile failures are reported but never roll back
// already-applied changes, matching the Reconciler's own no-rollback
// contract.
func (p *Processor) handleRemoteConfig(ctx context.Context, rc eventbus.RemoteConfig) {
	doc := soleEntry(rc.ConfigMap)

	effective, err := p.configStore.Effective(ctx, doc)
	if err != nil {
		p.failRemoteConfig(ctx, rc, err)
		return
	}

	if err := validator.Validate(effective, p.registry); err != nil {
		p.failRemoteConfig(ctx, rc, err)
		return
	}

	if err := p.reconciler.Reconcile(ctx, effective); err != nil {
		p.failRemoteConfig(ctx, rc, err)
		return
	}

	if doc == "" {
		err = p.configStore.Delete()
	} else {
		err = p.configStore.Store(doc)
	}
	if err != nil {
		p.failRemoteConfig(ctx, rc, err)
		return
	}

	applied := rc.Hash.Applied()
	p.saveAndReport(ctx, rc.AgentID, applied)
}

func (p *Processor) failRemoteConfig(ctx context.Context, rc eventbus.RemoteConfig, cause error) {
	p.logger.Error("processor: remote config delivery failed", "agent_id", rc.AgentID, "error", cause)
	p.saveAndReport(ctx, rc.AgentID, rc.Hash.FailedWith(cause.Error()))
}

func (p *Processor) saveAndReport(ctx context.Context, id agentid.ID, h hashstore.Hash) {
	if err := p.hashes.Save(id, h); err != nil {
		p.logger.Warn("processor: persisting remote config hash failed", "agent_id", id, "error", err)
	}
	if p.mgmt != nil {
		if err := p.mgmt.ReportRemoteConfigStatus(ctx, id, h); err != nil {
			p.logger.Warn("processor: reporting remote config status failed", "agent_id", id, "error", err)
		}
	}
}

// soleEntry returns the single value in m, or "" if m is nil/empty. A
// RemoteConfig's config_map is documented to carry at most one entry
// (spec.md §3).
func soleEntry(m map[string]string) string {
	for _, v := range m {
		return v
	}
	return ""
}
