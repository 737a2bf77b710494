// Package dynamicconfig implements the C3 Dynamic Config Store: the
// effective desired topology obtained by overlaying a remote-delivered
// config on top of a local baseline (spec.md §2 C3, §4.3).
package dynamicconfig

import (
	"context"
	"fmt"

	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

// ErrInvalidConfig is returned by Load/Store when a document fails to parse
// or validate structurally (spec.md §4.3).
type ErrInvalidConfig struct {
	Cause error
}

func (e *ErrInvalidConfig) Error() string { return fmt.Sprintf("invalid config: %v", e.Cause) }
func (e *ErrInvalidConfig) Unwrap() error { return e.Cause }

// LocalSource supplies the local baseline desired config, e.g. from a
// GitOps repository (gitsource) or an S3 bucket (s3source).
type LocalSource interface {
	Load(ctx context.Context) ([]byte, error)
}

// OverlayRepository persists the single remote-delivered overlay document.
// Implemented by SQLiteOverlay.
type OverlayRepository interface {
	Get() (doc string, ok bool, err error)
	Put(doc string) error
	Delete() error
}

// Store implements the C3 contract.
type Store struct {
	local   LocalSource
	overlay OverlayRepository
}

// New builds a Store from a local baseline source and an overlay
// repository.
func New(local LocalSource, overlay OverlayRepository) *Store {
	return &Store{local: local, overlay: overlay}
}

// Load returns the effective desired config: the local baseline is always
// read first, then passed through Merge together with the remote overlay
// when one is present. A present overlay fully replaces the baseline
// (spec.md §4.3); with no overlay present, the local baseline is returned
// unchanged.
func (s *Store) Load(ctx context.Context) (subagentconfig.Dynamic, error) {
	data, err := s.local.Load(ctx)
	if err != nil {
		return subagentconfig.Dynamic{}, fmt.Errorf("dynamicconfig: loading local baseline: %w", err)
	}
	base, err := parse(string(data))
	if err != nil {
		return subagentconfig.Dynamic{}, err
	}

	doc, ok, err := s.overlay.Get()
	if err != nil {
		return subagentconfig.Dynamic{}, fmt.Errorf("dynamicconfig: reading overlay: %w", err)
	}
	if !ok {
		return base, nil
	}

	overlay, err := parse(doc)
	if err != nil {
		return subagentconfig.Dynamic{}, err
	}
	return Merge(base, overlay), nil
}

// Effective reports what Load would return if doc replaced the current
// overlay (or, when doc is "", if the overlay were removed entirely),
// without persisting anything. Callers that must validate and reconcile a
// remote-delivered document before committing it (spec.md §4.8 steps 5-7)
// use this instead of Store+Load so a config that fails validation or
// reconcile never reaches the overlay.
func (s *Store) Effective(ctx context.Context, doc string) (subagentconfig.Dynamic, error) {
	data, err := s.local.Load(ctx)
	if err != nil {
		return subagentconfig.Dynamic{}, fmt.Errorf("dynamicconfig: loading local baseline: %w", err)
	}
	base, err := parse(string(data))
	if err != nil {
		return subagentconfig.Dynamic{}, err
	}
	if doc == "" {
		return base, nil
	}

	overlay, err := parse(doc)
	if err != nil {
		return subagentconfig.Dynamic{}, err
	}
	return Merge(base, overlay), nil
}

// Store persists a remote overlay document. The document is validated for
// parseability before being persisted.
func (s *Store) Store(doc string) error {
	if _, err := parse(doc); err != nil {
		return &ErrInvalidConfig{Cause: err}
	}
	if err := s.overlay.Put(doc); err != nil {
		return fmt.Errorf("dynamicconfig: persisting overlay: %w", err)
	}
	return nil
}

// Delete removes any remote overlay; the next Load returns the local
// baseline.
func (s *Store) Delete() error {
	if err := s.overlay.Delete(); err != nil {
		return fmt.Errorf("dynamicconfig: deleting overlay: %w", err)
	}
	return nil
}

func parse(doc string) (subagentconfig.Dynamic, error) {
	d, err := subagentconfig.Parse([]byte(doc))
	if err != nil {
		return subagentconfig.Dynamic{}, &ErrInvalidConfig{Cause: err}
	}
	return d, nil
}
