package hashstore

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
)

// SQLiteStore implements Store backed by a local SQLite file, the same
// single-shared-connection pattern used for vector storage in the pack's
// retrieval example (nevindra-oasis/store/sqlite): one *sql.DB with
// SetMaxOpenConns(1) so every goroutine serializes through one connection,
// which avoids SQLITE_BUSY without needing an in-process mutex of our own.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed Hash Store at
// dbPath and ensures its schema exists.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("hashstore: opening %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS hashes (
		agent_id TEXT PRIMARY KEY,
		value    TEXT NOT NULL,
		state    TEXT NOT NULL,
		message  TEXT NOT NULL DEFAULT ''
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("hashstore: creating schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(id agentid.ID) (Hash, bool, error) {
	row := s.db.QueryRow(`SELECT value, state, message FROM hashes WHERE agent_id = ?`, string(id))

	var value, stateStr, message string
	if err := row.Scan(&value, &stateStr, &message); err != nil {
		if err == sql.ErrNoRows {
			return Hash{}, false, nil
		}
		return Hash{}, false, fmt.Errorf("hashstore: get %s: %w", id, err)
	}

	h := Hash{Value: value, State: parseState(stateStr), Message: message}
	if err := h.Validate(); err != nil {
		s.logger.Warn("hashstore: persisted row violates invariant", "agent_id", id, "error", err)
	}
	return h, true, nil
}

// Save implements Store. It is an atomic replace via SQLite's upsert
// clause: any prior hash for id is overwritten in a single statement.
func (s *SQLiteStore) Save(id agentid.ID, h Hash) error {
	if err := h.Validate(); err != nil {
		return err
	}

	const upsert = `
		INSERT INTO hashes (agent_id, value, state, message) VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET value = excluded.value, state = excluded.state, message = excluded.message
	`
	if _, err := s.db.Exec(upsert, string(id), h.Value, h.State.String(), h.Message); err != nil {
		return fmt.Errorf("hashstore: save %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseState(s string) State {
	switch s {
	case "applied":
		return Applied
	case "failed":
		return Failed
	default:
		return Applying
	}
}
