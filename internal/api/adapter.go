package api

import (
	"time"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/collection"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/healthreport"
)

// ProcessorStatus adapts the running Collection and Hash Store to
// StatusProvider, reporting every sub-agent the core currently manages
// alongside its last-persisted remote-config hash.
type ProcessorStatus struct {
	Running   *collection.Collection
	Hashes    hashstore.Store
	StartedAt time.Time
}

// Status implements StatusProvider.
func (p *ProcessorStatus) Status() map[string]any {
	ids := p.Running.IDs()
	agents := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, p.agentEntry(id))
	}

	return map[string]any{
		"agent_id":   string(agentid.Self),
		"uptime":     time.Since(p.StartedAt).String(),
		"started_at": p.StartedAt.UTC().Format(time.RFC3339),
		"agents":     agents,
	}
}

// AgentStatus implements api.AgentDetailProvider, looking up a single
// managed sub-agent by AgentID without building the full fleet listing.
func (p *ProcessorStatus) AgentStatus(id string) (map[string]any, bool) {
	aid := agentid.ID(id)
	if _, ok := p.Running.Get(aid); !ok {
		return nil, false
	}
	return p.agentEntry(aid), true
}

func (p *ProcessorStatus) agentEntry(id agentid.ID) map[string]any {
	entry := map[string]any{"agent_id": string(id)}
	if handle, ok := p.Running.Get(id); ok {
		entry["config_hash"] = handle.ConfigHash()
		entry["agent_type"] = handle.AgentType().String()
	}
	if h, ok, err := p.Hashes.Get(id); err == nil && ok {
		entry["remote_config_state"] = h.State.String()
		if h.State == hashstore.Failed {
			entry["remote_config_error"] = h.Message
		}
	}
	return entry
}

// ProcessorHealth adapts the Health Reporter to HealthResultsProvider,
// surfacing the last-known health of every sub-agent it has heard from
// plus the control plane's own self-reported health.
type ProcessorHealth struct {
	Reporter *healthreport.Reporter
	Running  *collection.Collection
}

// Results implements HealthResultsProvider.
func (p *ProcessorHealth) Results() map[string]any {
	results := make(map[string]any, p.Running.Len()+1)

	if rep, ok := p.Reporter.Get(agentid.Self); ok {
		results[string(agentid.Self)] = reportToMap(rep)
	}
	for _, id := range p.Running.IDs() {
		if rep, ok := p.Reporter.Get(id); ok {
			results[string(id)] = reportToMap(rep)
		}
	}
	return results
}

func reportToMap(r health.Report) map[string]any {
	if r.Healthy != nil {
		return map[string]any{
			"status":     "healthy",
			"status_text": r.Healthy.StatusText,
			"start_time": r.StartTime.UTC().Format(time.RFC3339),
		}
	}
	out := map[string]any{
		"status":     "unhealthy",
		"start_time": r.StartTime.UTC().Format(time.RFC3339),
	}
	if r.Unhealthy != nil {
		out["status_text"] = r.Unhealthy.StatusText
		out["last_error"] = r.Unhealthy.LastErrorMessage
	}
	return out
}
