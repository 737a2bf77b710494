package processor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/collection"
	"github.com/fleetcontrol/agentcontrol/internal/dynamicconfig"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

type fakeLocal struct{ doc string }

func (f *fakeLocal) Load(ctx context.Context) ([]byte, error) { return []byte(f.doc), nil }

type fakeOverlay struct {
	doc string
	ok  bool
}

func (f *fakeOverlay) Get() (string, bool, error) { return f.doc, f.ok, nil }
func (f *fakeOverlay) Put(doc string) error        { f.doc, f.ok = doc, true; return nil }
func (f *fakeOverlay) Delete() error                { f.doc, f.ok = "", false; return nil }

type fakeHandle struct{ hash string }

func (f *fakeHandle) ConfigHash() string              { return f.hash }
func (f *fakeHandle) AgentType() agenttype.FQN        { return agenttype.FQN{} }
func (f *fakeHandle) Stop(ctx context.Context) error { return nil }

type fakeNotStarted struct{ hash string }

func (n *fakeNotStarted) Start(ctx context.Context) (subagent.Started, error) {
	return &fakeHandle{hash: n.hash}, nil
}

type fakeBuilder struct{}

func (fakeBuilder) Build(id agentid.ID, cfg subagentconfig.Config, events chan<- eventbus.SubAgentEvent) (subagent.NotStarted, error) {
	return &fakeNotStarted{hash: cfg.Hash()}, nil
}

type fakeOrphanBuilder struct {
	fakeBuilder
	collectCalls int
	lastWant     map[agentid.ID]struct{}
}

func (f *fakeOrphanBuilder) CollectOrphans(ctx context.Context, want map[agentid.ID]struct{}) error {
	f.collectCalls++
	f.lastWant = want
	return nil
}

type fakeHashStore struct{ saved map[agentid.ID]hashstore.Hash }

func newFakeHashStore() *fakeHashStore { return &fakeHashStore{saved: map[agentid.ID]hashstore.Hash{}} }
func (f *fakeHashStore) Get(id agentid.ID) (hashstore.Hash, bool, error) {
	h, ok := f.saved[id]
	return h, ok, nil
}
func (f *fakeHashStore) Save(id agentid.ID, h hashstore.Hash) error {
	f.saved[id] = h
	return nil
}

type fakeMgmt struct {
	events          chan eventbus.ManagementEvent
	reportedStatus  map[agentid.ID]hashstore.Hash
}

func newFakeMgmt() *fakeMgmt {
	return &fakeMgmt{events: make(chan eventbus.ManagementEvent, 8), reportedStatus: map[agentid.ID]hashstore.Hash{}}
}
func (f *fakeMgmt) SetHealth(ctx context.Context, id agentid.ID, report health.Report) error {
	return nil
}
func (f *fakeMgmt) ReportRemoteConfigStatus(ctx context.Context, id agentid.ID, h hashstore.Hash) error {
	f.reportedStatus[id] = h
	return nil
}
func (f *fakeMgmt) Stop(ctx context.Context) error                        { return nil }
func (f *fakeMgmt) Events() <-chan eventbus.ManagementEvent { return f.events }

const infraDoc = "agents:\n  infra-agent:\n    agent_type: newrelic/infra:0.1.0\n    command: /bin/infra\n"

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testRegistry() agenttype.Registry {
	return agenttype.NewStaticRegistry([]agenttype.Definition{
		{FQN: agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"}, RequiredFields: []string{"command"}},
	})
}

func newTestProcessor(t *testing.T, local *fakeLocal, overlay *fakeOverlay, mgmt *fakeMgmt) (*Processor, *collection.Collection, *fakeHashStore) {
	t.Helper()
	running := collection.New()
	hashes := newFakeHashStore()
	store := dynamicconfig.New(local, overlay)

	var mgmtClient mgmtclient.Client
	if mgmt != nil {
		mgmtClient = mgmt
	}

	p := New(Deps{
		ConfigStore:  store,
		Registry:     testRegistry(),
		Hashes:       hashes,
		Running:      running,
		Builder:      fakeBuilder{},
		Mgmt:         mgmtClient,
		App:          eventbus.New[eventbus.ApplicationEvent](),
		SubAgent:     eventbus.New[eventbus.SubAgentEvent](),
		ControlPlane: eventbus.New[eventbus.ControlPlaneEvent](),
		Logger:       testLogger(),
	})
	return p, running, hashes
}

func TestBootstrap_BringsUpDesiredAgents(t *testing.T) {
	p, running, _ := newTestProcessor(t, &fakeLocal{doc: infraDoc}, &fakeOverlay{}, nil)

	if err := p.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if running.Len() != 1 {
		t.Fatalf("expected 1 running sub-agent after bootstrap, got %d", running.Len())
	}
}

func TestBootstrap_RecoversOwnHashLeftApplying(t *testing.T) {
	mgmt := newFakeMgmt()
	p, _, hashes := newTestProcessor(t, &fakeLocal{doc: "agents: {}\n"}, &fakeOverlay{}, mgmt)
	if err := hashes.Save(agentid.Self, hashstore.NewApplying("crash-hash")); err != nil {
		t.Fatalf("seeding applying hash: %v", err)
	}

	if err := p.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	got := hashes.saved[agentid.Self]
	if got.State != hashstore.Applied || got.Value != "crash-hash" {
		t.Fatalf("expected the leftover Applying hash to be recovered as Applied, got %+v", got)
	}
	if mgmt.reportedStatus[agentid.Self].State != hashstore.Applied {
		t.Fatalf("expected management server to be told the recovered hash is Applied, got %v", mgmt.reportedStatus[agentid.Self].State)
	}
}

func TestHandleRemoteConfig_PersistsOverlayAndReconciles(t *testing.T) {
	mgmt := newFakeMgmt()
	overlay := &fakeOverlay{}
	p, running, hashes := newTestProcessor(t, &fakeLocal{doc: "agents: {}\n"}, overlay, mgmt)

	ctx := context.Background()
	if err := p.bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if running.Len() != 0 {
		t.Fatalf("expected no agents from empty local baseline, got %d", running.Len())
	}

	rc := eventbus.RemoteConfig{
		AgentID: "infra-agent",
		Hash:    hashstore.NewApplying("new-hash"),
		ConfigMap: map[string]string{
			"agents.yaml": infraDoc,
		},
	}
	p.handleRemoteConfig(ctx, rc)

	if running.Len() != 1 {
		t.Fatalf("expected 1 running sub-agent after remote config, got %d", running.Len())
	}
	if !overlay.ok || overlay.doc != infraDoc {
		t.Fatalf("expected the delivered document to be persisted as the overlay, got ok=%v doc=%q", overlay.ok, overlay.doc)
	}
	if hashes.saved["infra-agent"].State != hashstore.Applied {
		t.Fatalf("expected Applied hash state, got %v", hashes.saved["infra-agent"].State)
	}
	if mgmt.reportedStatus["infra-agent"].State != hashstore.Applied {
		t.Fatalf("expected management server to be told Applied, got %v", mgmt.reportedStatus["infra-agent"].State)
	}
}

func TestHandleRemoteConfig_EmptyMapRevertsToLocal(t *testing.T) {
	mgmt := newFakeMgmt()
	p, running, _ := newTestProcessor(t, &fakeLocal{doc: infraDoc}, &fakeOverlay{doc: "agents: {}\n", ok: true}, mgmt)

	ctx := context.Background()
	if err := p.bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if running.Len() != 0 {
		t.Fatalf("expected overlay to suppress the local agent, got %d running", running.Len())
	}

	p.handleRemoteConfig(ctx, eventbus.RemoteConfig{AgentID: "infra-agent", Hash: hashstore.NewApplying("x")})

	if running.Len() != 1 {
		t.Fatalf("expected revert to local baseline to bring up infra-agent, got %d running", running.Len())
	}
}

func TestBootstrap_CollectsOrphansWhenBuilderSupportsIt(t *testing.T) {
	running := collection.New()
	orphanBuilder := &fakeOrphanBuilder{}

	p := New(Deps{
		ConfigStore:  dynamicconfig.New(&fakeLocal{doc: infraDoc}, &fakeOverlay{}),
		Registry:     testRegistry(),
		Hashes:       newFakeHashStore(),
		Running:      running,
		Builder:      orphanBuilder,
		App:          eventbus.New[eventbus.ApplicationEvent](),
		SubAgent:     eventbus.New[eventbus.SubAgentEvent](),
		ControlPlane: eventbus.New[eventbus.ControlPlaneEvent](),
		Logger:       testLogger(),
	})

	if err := p.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if orphanBuilder.collectCalls != 1 {
		t.Fatalf("expected CollectOrphans to be called once, got %d", orphanBuilder.collectCalls)
	}
	if _, ok := orphanBuilder.lastWant["infra-agent"]; !ok {
		t.Fatalf("expected infra-agent in the wanted set, got %v", orphanBuilder.lastWant)
	}
}

func TestHandleRemoteConfig_ValidationFailureReportsFailed(t *testing.T) {
	mgmt := newFakeMgmt()
	p, running, hashes := newTestProcessor(t, &fakeLocal{doc: "agents: {}\n"}, &fakeOverlay{}, mgmt)

	ctx := context.Background()
	_ = p.bootstrap(ctx)

	badDoc := "agents:\n  infra-agent:\n    agent_type: newrelic/infra:0.1.0\n"
	p.handleRemoteConfig(ctx, eventbus.RemoteConfig{
		AgentID:   "infra-agent",
		Hash:      hashstore.NewApplying("bad-hash"),
		ConfigMap: map[string]string{"agents.yaml": badDoc},
	})

	if running.Len() != 0 {
		t.Fatalf("expected no agent to be started for a config that fails validation")
	}
	if hashes.saved["infra-agent"].State != hashstore.Failed {
		t.Fatalf("expected Failed hash state, got %v", hashes.saved["infra-agent"].State)
	}
}

func TestHandleRemoteConfig_RejectedConfigNeverReachesOverlay(t *testing.T) {
	mgmt := newFakeMgmt()
	overlay := &fakeOverlay{}
	p, _, _ := newTestProcessor(t, &fakeLocal{doc: "agents: {}\n"}, overlay, mgmt)

	ctx := context.Background()
	_ = p.bootstrap(ctx)

	badDoc := "agents:\n  infra-agent:\n    agent_type: newrelic/infra:0.1.0\n"
	p.handleRemoteConfig(ctx, eventbus.RemoteConfig{
		AgentID:   "infra-agent",
		Hash:      hashstore.NewApplying("bad-hash"),
		ConfigMap: map[string]string{"agents.yaml": badDoc},
	})

	if overlay.ok {
		t.Fatalf("expected a config that fails validation to never be persisted as the overlay")
	}

	// A second bootstrap (simulating a restart) must not fail just because
	// a previously rejected remote config would have been reloaded.
	if err := p.bootstrap(ctx); err != nil {
		t.Fatalf("expected bootstrap to succeed on restart, got: %v", err)
	}
}
