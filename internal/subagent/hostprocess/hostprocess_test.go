package hostprocess

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuilder_BuildRejectsMissingCommand(t *testing.T) {
	b := NewBuilder(t.TempDir(), testLogger())
	events := make(chan eventbus.SubAgentEvent, 4)

	_, err := b.Build("infra-agent", subagentconfig.Config{
		AgentType: agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"},
		Values:    map[string]any{},
	}, events)
	if err == nil {
		t.Fatalf("expected error for missing command field")
	}
}

func TestBuilder_StartStopPublishesEvents(t *testing.T) {
	b := NewBuilder(t.TempDir(), testLogger())
	events := make(chan eventbus.SubAgentEvent, 4)

	id := agentid.ID("infra-agent")
	ns, err := b.Build(id, subagentconfig.Config{
		AgentType: agenttype.FQN{Namespace: "newrelic", Name: "infra", Version: "0.1.0"},
		Values: map[string]any{
			"command": "/bin/sleep",
			"args":    []any{"30"},
		},
	}, events)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started, err := ns.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != eventbus.SubAgentBecameHealthy {
			t.Fatalf("expected SubAgentBecameHealthy, got %v", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for start event")
	}

	if started.ConfigHash() == "" {
		t.Fatalf("expected non-empty config hash")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := started.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
