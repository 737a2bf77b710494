package eventbus

import (
	"time"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
)

// ApplicationEvent is the stream carrying lifecycle signals from the host
// process (signal handler, CLI shutdown request).
type ApplicationEvent struct {
	StopRequested bool
}

// RemoteConfig is `{ agent_id, hash, config_map }` as delivered by the
// management server (spec.md §3). ConfigMap is nil for a delete/revert
// signal; otherwise it must carry exactly one entry, whose value is either
// a YAML document or the empty-string "revert to local" sentinel.
type RemoteConfig struct {
	AgentID   agentid.ID
	Hash      hashstore.Hash
	ConfigMap map[string]string
}

// ManagementEvent is the stream carrying events from the management client
// (OpAMP connection lifecycle, remote config delivery).
type ManagementEvent struct {
	Kind             ManagementEventKind
	RemoteConfig     RemoteConfig
	ConnectErrorCode *int
	ConnectErrorMsg  string
}

// ManagementEventKind tags the variant carried by a ManagementEvent.
type ManagementEventKind int

const (
	ManagementRemoteConfigReceived ManagementEventKind = iota
	ManagementConnected
	ManagementConnectFailed
)

// SubAgentEvent is the stream carrying health and config-change signals
// from each running sub-agent's internal probe.
type SubAgentEvent struct {
	Kind      SubAgentEventKind
	AgentID   agentid.ID
	Healthy   health.Healthy
	Unhealthy health.Unhealthy
	StartTime time.Time
}

// SubAgentEventKind tags the variant carried by a SubAgentEvent.
type SubAgentEventKind int

const (
	SubAgentBecameHealthy SubAgentEventKind = iota
	SubAgentBecameUnhealthy
	SubAgentConfigUpdated
)

// ControlPlaneEvent is the outbound stream: the full alphabet of events
// observers (and, indirectly, the management client bridge) see leave the
// core (spec.md §3, §6).
type ControlPlaneEvent struct {
	Kind              ControlPlaneEventKind
	AgentID           agentid.ID
	AgentType         agenttype.FQN
	Healthy           health.Healthy
	Unhealthy         health.Unhealthy
	StartTime         time.Time
	ConnectErrorCode  *int
	ConnectErrorMsg   string
}

// ControlPlaneEventKind tags the variant carried by a ControlPlaneEvent.
type ControlPlaneEventKind int

const (
	ControlPlaneBecameHealthy ControlPlaneEventKind = iota
	ControlPlaneBecameUnhealthy
	ControlPlaneOpAMPConnected
	ControlPlaneOpAMPConnectFailed
	ControlPlaneSubAgentRemoved
	ControlPlaneStopped
)
