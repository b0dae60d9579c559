// Package store implements the two local durable SQLite-backed stores
// named in §6 "Persisted state": transfers.db (the transfer engine's
// history, satisfying transfer.Store) and search.db (search history and
// the per-peer results they gathered). Both carry a schema-versioned
// meta table; opening a database whose stored version doesn't match
// CurrentSchemaVersion fails outright rather than silently guessing at a
// migration, per §6's "on mismatch, the core refuses to start until a
// migration is supplied."
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the schema version this build of the store
// knows how to read and write. Bump it, and add a migration path, when
// the table layout changes.
const CurrentSchemaVersion = 1

// ErrSchemaMismatch is wrapped into the error returned by openVersioned
// when an existing database's meta.schema_version doesn't match
// CurrentSchemaVersion.
type ErrSchemaMismatch struct {
	Path    string
	Stored  int
	Current int
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("%s: schema version %d does not match %d; a migration is required", e.Path, e.Stored, e.Current)
}

// openVersioned opens a sqlite database at path, creates its meta table
// and runs createTables if the database is fresh, and otherwise verifies
// the stored schema version matches CurrentSchemaVersion.
func openVersioned(path string, createTables func(*sql.DB) error) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	var stored int
	err = db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if err := createTables(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables for %s: %w", path, err)
		}
		if _, err := db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(CurrentSchemaVersion)); err != nil {
			db.Close()
			return nil, fmt.Errorf("stamp schema version for %s: %w", path, err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read schema version from %s: %w", path, err)
	case stored != CurrentSchemaVersion:
		db.Close()
		return nil, &ErrSchemaMismatch{Path: path, Stored: stored, Current: CurrentSchemaVersion}
	}

	return db, nil
}
