// Package mgmtclient defines the narrow contract the core holds the
// external management server connection to. The wire protocol itself
// (OpAMP or otherwise) is treated as opaque and out of scope — the core
// only ever calls these three methods and consumes the RemoteConfig
// stream a Client exposes (spec.md §2, §7: "management client is an
// opaque collaborator").
package mgmtclient

import (
	"context"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
)

// Client is what the Health Reporter and Event Processor hold the
// management connection to. Implementations must make every method safe
// to call concurrently with the others and with event delivery on
// Events().
type Client interface {
	// SetHealth reports the current health of id (agentid.Self for the
	// control plane itself) to the management server. A transport failure
	// here must never block or fail the caller's own event processing —
	// callers treat its error as log-and-continue.
	SetHealth(ctx context.Context, id agentid.ID, report health.Report) error

	// ReportRemoteConfigStatus acknowledges application of a previously
	// delivered RemoteConfig, carrying the outcome recorded in h.
	ReportRemoteConfigStatus(ctx context.Context, id agentid.ID, h hashstore.Hash) error

	// Stop releases the connection. After Stop returns, Events() must be
	// closed or otherwise stop producing values.
	Stop(ctx context.Context) error

	// Events returns the stream of inbound ManagementEvents (connection
	// lifecycle, remote config delivery) for the Event Processor to
	// multiplex alongside its other streams.
	Events() <-chan eventbus.ManagementEvent
}
