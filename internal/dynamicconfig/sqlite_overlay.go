package dynamicconfig

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// SQLiteOverlay implements OverlayRepository backed by a local SQLite file,
// the same single-shared-connection pattern as hashstore.SQLiteStore: one
// *sql.DB with SetMaxOpenConns(1) serializing every access through a single
// connection. There is at most one overlay document fleet-wide, so the
// schema is a single-row table keyed on a fixed id.
type SQLiteOverlay struct {
	db *sql.DB
}

// NewSQLiteOverlay opens (creating if absent) a SQLite-backed overlay
// repository at dbPath and ensures its schema exists.
func NewSQLiteOverlay(dbPath string) (*SQLiteOverlay, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("dynamicconfig: opening %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS remote_overlay (
		id  INTEGER PRIMARY KEY CHECK (id = 1),
		doc TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dynamicconfig: creating schema: %w", err)
	}
	return &SQLiteOverlay{db: db}, nil
}

// Get implements OverlayRepository.
func (o *SQLiteOverlay) Get() (string, bool, error) {
	row := o.db.QueryRow(`SELECT doc FROM remote_overlay WHERE id = 1`)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("dynamicconfig: reading overlay row: %w", err)
	}
	return doc, true, nil
}

// Put implements OverlayRepository, replacing any prior overlay document.
func (o *SQLiteOverlay) Put(doc string) error {
	const upsert = `
		INSERT INTO remote_overlay (id, doc) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc
	`
	if _, err := o.db.Exec(upsert, doc); err != nil {
		return fmt.Errorf("dynamicconfig: writing overlay row: %w", err)
	}
	return nil
}

// Delete implements OverlayRepository.
func (o *SQLiteOverlay) Delete() error {
	if _, err := o.db.Exec(`DELETE FROM remote_overlay WHERE id = 1`); err != nil {
		return fmt.Errorf("dynamicconfig: deleting overlay row: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (o *SQLiteOverlay) Close() error {
	return o.db.Close()
}
