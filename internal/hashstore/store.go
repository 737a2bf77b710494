package hashstore

import "github.com/fleetcontrol/agentcontrol/internal/agentid"

// Store is the C2 contract: get/save a single Hash per AgentID, with
// save() atomically replacing any prior hash (spec.md §4.2).
type Store interface {
	// Get returns the persisted Hash for id, or ok=false if none was ever
	// stored.
	Get(id agentid.ID) (h Hash, ok bool, err error)
	// Save atomically replaces any prior Hash for id.
	Save(id agentid.ID, h Hash) error
}
