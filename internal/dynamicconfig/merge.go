package dynamicconfig

import "github.com/fleetcontrol/agentcontrol/internal/subagentconfig"

// Merge computes the effective Dynamic config from a local baseline and a
// remote-delivered overlay, as a standalone, testable step — mirroring the
// original implementation's separate "effective agents assembler" stage
// (original_source/src/super_agent/effective_agents_assembler.rs) instead
// of folding the decision into Store.Load directly.
//
// A present overlay fully replaces the baseline (spec.md end-to-end
// scenario 3: a remote update naming only a subset of agents removes the
// others, so this is a replace, not a per-agent field merge).
func Merge(base, overlay subagentconfig.Dynamic) subagentconfig.Dynamic {
	return overlay
}
