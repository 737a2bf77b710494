// Package opampclient implements mgmtclient.Client as a concrete adapter
// over github.com/open-telemetry/opamp-go, the library the pack's
// cloudwatch-agent retrieval example builds its own supervisor/extension
// OpAMP integration on (cmd/opampsupervisor, extension/opampextension).
// It is the one place in this module that knows the wire protocol is
// OpAMP; the core never imports this package directly, only the
// mgmtclient.Client interface.
package opampclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/open-telemetry/opamp-go/client"
	"github.com/open-telemetry/opamp-go/client/types"
	"github.com/open-telemetry/opamp-go/protobufs"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient"
)

var _ mgmtclient.Client = (*Client)(nil)

// Config configures the OpAMP connection.
type Config struct {
	ServerURL    string
	InstanceUID  [16]byte
	Capabilities protobufs.AgentCapabilities
}

// Client adapts an opamp-go client.OpAMPClient to mgmtclient.Client.
type Client struct {
	opamp  client.OpAMPClient
	logger *slog.Logger

	mu     sync.Mutex
	events chan eventbus.ManagementEvent
}

// Connect starts the underlying OpAMP connection over HTTP polling, the
// transport the pack's opampsupervisor example also drives its commander
// process through.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		opamp:  client.NewHTTP(nil),
		logger: logger,
		events: make(chan eventbus.ManagementEvent, 64),
	}

	settings := types.StartSettings{
		OpAMPServerURL: cfg.ServerURL,
		InstanceUid:    cfg.InstanceUID,
		Callbacks: types.CallbacksStruct{
			OnConnectFunc: func(ctx context.Context) {
				c.emit(eventbus.ManagementEvent{Kind: eventbus.ManagementConnected})
			},
			OnConnectFailedFunc: func(ctx context.Context, err error) {
				code := -1
				c.emit(eventbus.ManagementEvent{
					Kind:             eventbus.ManagementConnectFailed,
					ConnectErrorCode: &code,
					ConnectErrorMsg:  err.Error(),
				})
			},
			OnMessageFunc: func(ctx context.Context, msg *types.MessageData) {
				c.handleMessage(msg)
			},
		},
		Capabilities: cfg.Capabilities,
	}

	if err := c.opamp.Start(ctx, settings); err != nil {
		return nil, fmt.Errorf("opampclient: starting connection: %w", err)
	}
	return c, nil
}

// SetHealth implements mgmtclient.Client.
func (c *Client) SetHealth(ctx context.Context, id agentid.ID, report health.Report) error {
	h := &protobufs.ComponentHealth{
		Healthy:           report.IsHealthy(),
		StartTimeUnixNano: uint64(report.StartTime.UnixNano()),
	}
	if report.Healthy != nil {
		h.Status = report.Healthy.StatusText
	}
	if report.Unhealthy != nil {
		h.Status = report.Unhealthy.StatusText
		h.LastError = report.Unhealthy.LastErrorMessage
	}
	if err := c.opamp.SetHealth(h); err != nil {
		return fmt.Errorf("opampclient: reporting health for %s: %w", id, err)
	}
	return nil
}

// ReportRemoteConfigStatus implements mgmtclient.Client.
func (c *Client) ReportRemoteConfigStatus(ctx context.Context, id agentid.ID, h hashstore.Hash) error {
	status := &protobufs.RemoteConfigStatus{
		LastRemoteConfigHash: []byte(h.Value),
	}
	switch h.State {
	case hashstore.Applied:
		status.Status = protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED
	case hashstore.Failed:
		status.Status = protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED
		status.ErrorMessage = h.Message
	default:
		status.Status = protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLYING
	}

	if err := c.opamp.SetRemoteConfigStatus(status); err != nil {
		return fmt.Errorf("opampclient: reporting remote config status for %s: %w", id, err)
	}
	return nil
}

// Stop implements mgmtclient.Client.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.opamp.Stop(ctx); err != nil {
		return fmt.Errorf("opampclient: stopping: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.events)
	return nil
}

// Events implements mgmtclient.Client.
func (c *Client) Events() <-chan eventbus.ManagementEvent {
	return c.events
}

func (c *Client) emit(ev eventbus.ManagementEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("opampclient: management event dropped, channel full", "kind", ev.Kind)
	}
}

// handleMessage translates an inbound OpAMP message carrying a remote
// config into a ManagementEvent. A config_map with more than one entry is
// logged and dropped; an empty one is forwarded as is, which the Event
// Processor reads as a revert to the local baseline.
//
// Every remote config OpAMP delivers here is addressed to the control
// plane's own reserved AgentID (spec.md §4.8 step 9, §6): OpAMP's
// RemoteConfig has no per-agent addressing of its own — the server's
// instance-scoped connection already identifies the recipient — so the
// RemoteConfig event is always built with AgentID: agentid.Self rather
// than read back out of the config_map.
func (c *Client) handleMessage(msg *types.MessageData) {
	if msg.RemoteConfig == nil {
		return
	}

	entries := msg.RemoteConfig.Config.GetConfigMap()
	if len(entries) > 1 {
		c.logger.Warn("opampclient: remote config with more than one config_map entry dropped", "entries", len(entries))
		return
	}

	configMap := make(map[string]string, len(entries))
	for name, file := range entries {
		configMap[name] = string(file.GetBody())
	}

	c.emit(eventbus.ManagementEvent{
		Kind: eventbus.ManagementRemoteConfigReceived,
		RemoteConfig: eventbus.RemoteConfig{
			AgentID:   agentid.Self,
			Hash:      hashstore.NewApplying(string(msg.RemoteConfig.ConfigHash)),
			ConfigMap: configMap,
		},
	})
}
