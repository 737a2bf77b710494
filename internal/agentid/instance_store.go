package agentid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstanceStore persists the control plane's own OpAMP instance identifier
// across restarts so it reports a stable identity to the management server,
// instead of minting a fresh one on every boot.
type InstanceStore struct {
	path string
}

// NewInstanceStore returns a store backed by a file under stateDir.
func NewInstanceStore(stateDir string) *InstanceStore {
	return &InstanceStore{path: filepath.Join(stateDir, "instance_id")}
}

// LoadOrCreate returns the persisted instance ID, generating and persisting
// a new UUID the first time it is called.
func (s *InstanceStore) LoadOrCreate() (uuid.UUID, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		id, parseErr := uuid.Parse(strings.TrimSpace(string(data)))
		if parseErr == nil {
			return id, nil
		}
		// Fall through and regenerate on a corrupt file.
	} else if !os.IsNotExist(err) {
		return uuid.Nil, fmt.Errorf("reading instance id: %w", err)
	}

	id := uuid.New()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id.String()+"\n"), 0o644); err != nil {
		return uuid.Nil, fmt.Errorf("persisting instance id: %w", err)
	}
	return id, nil
}
