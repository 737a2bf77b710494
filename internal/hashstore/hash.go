// Package hashstore implements the Hash state machine and its durable
// per-agent persistence (spec.md §2 C2, §3, §9 "Hash state machine").
package hashstore

import "fmt"

// State tags the Hash lifecycle: Applying -> Applied | Failed(message).
// Modeled as a tagged variant rather than a pair of booleans, per spec.md
// §9: the Failed variant carries a required non-empty message and
// constructors reject an empty one.
type State int

const (
	Applying State = iota
	Applied
	Failed
)

func (s State) String() string {
	switch s {
	case Applying:
		return "applying"
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hash is `{ value, state }`. Once terminal (Applied or Failed), a Hash is
// replaced by a new one on the next remote-config arrival; it is never
// mutated back to Applying (spec.md §3).
type Hash struct {
	Value   string
	State   State
	Message string // non-empty iff State == Failed
}

// NewApplying constructs a Hash in the Applying state for a freshly
// accepted remote config.
func NewApplying(value string) Hash {
	return Hash{Value: value, State: Applying}
}

// Applied returns a copy of h transitioned to the Applied terminal state.
func (h Hash) Applied() Hash {
	return Hash{Value: h.Value, State: Applied}
}

// FailedWith returns a copy of h transitioned to the Failed terminal state.
// It panics on an empty message: invariant §3 requires a Failed hash to
// always carry a non-empty message, and a constructor is the only place
// that invariant can be enforced once and for all.
func (h Hash) FailedWith(message string) Hash {
	if message == "" {
		panic("hashstore: Failed hash requires a non-empty message")
	}
	return Hash{Value: h.Value, State: Failed, Message: message}
}

// Validate checks the Failed-implies-non-empty-message invariant. The
// store layer uses it to refuse saving such a hash, and to log (not
// reject) a persisted row that violates it when reading.
func (h Hash) Validate() error {
	if h.State == Failed && h.Message == "" {
		return fmt.Errorf("hashstore: failed hash for value %q has empty message", h.Value)
	}
	return nil
}
