package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/overlayd/overlayd/internal/transfer"
)

// failureDetails is the JSON blob shape stored in the transfers table's
// failure_details column (§6 "a JSON blob for failure details"). It is a
// struct, not a bare string, so a future column addition (e.g. a retry
// count or an error taxonomy Kind) doesn't require a schema migration.
type failureDetails struct {
	Error string `json:"error,omitempty"`
}

// TransferStore persists transfer.Snapshot rows to transfers.db,
// implementing transfer.Store (§6 "transfers.db: transfers table with
// columns per the Transfer entity plus a JSON blob for failure details").
type TransferStore struct {
	db *sql.DB
}

var _ transfer.Store = (*TransferStore)(nil)

// OpenTransferStore opens (or creates) transfers.db at path.
func OpenTransferStore(path string) (*TransferStore, error) {
	db, err := openVersioned(path, createTransferTables)
	if err != nil {
		return nil, err
	}
	return &TransferStore{db: db}, nil
}

func createTransferTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE transfers (
			id               TEXT PRIMARY KEY,
			direction        TEXT NOT NULL,
			username         TEXT NOT NULL,
			grp              TEXT NOT NULL,
			remote_filename  TEXT NOT NULL,
			local_path       TEXT NOT NULL,
			size             INTEGER NOT NULL,
			bytes_transferred INTEGER NOT NULL,
			state            TEXT NOT NULL,
			failure_details  TEXT NOT NULL DEFAULT '{}',
			enqueued_at      INTEGER NOT NULL,
			started_at       INTEGER NOT NULL DEFAULT 0,
			completed_at     INTEGER NOT NULL DEFAULT 0
		)`)
	return err
}

// Close closes the underlying database handle.
func (s *TransferStore) Close() error { return s.db.Close() }

// SaveSnapshot upserts snap's row, replacing any prior row for the same
// transfer ID — the engine calls this on every state transition and
// periodically during an in-progress transfer (§4.1).
func (s *TransferStore) SaveSnapshot(snap transfer.Snapshot) error {
	failureJSON, err := json.Marshal(failureDetails{Error: snap.Err})
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO transfers (id, direction, username, grp, remote_filename, local_path, size, bytes_transferred, state, failure_details, enqueued_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bytes_transferred = excluded.bytes_transferred,
			state             = excluded.state,
			failure_details   = excluded.failure_details,
			started_at        = excluded.started_at,
			completed_at      = excluded.completed_at`,
		snap.ID, string(snap.Direction), snap.Username, snap.Group, snap.RemoteFilename, snap.LocalPath,
		snap.Size, snap.BytesTransferred, string(snap.State), string(failureJSON),
		unixOrZero(snap.EnqueuedAt), unixOrZero(snap.StartedAt), unixOrZero(snap.CompletedAt),
	)
	return err
}

// LoadNonTerminal returns every transfer whose last-saved state isn't
// terminal, for the engine's startup resume pass (§4.1 "on startup").
func (s *TransferStore) LoadNonTerminal() ([]transfer.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, direction, username, grp, remote_filename, local_path, size, bytes_transferred, state, failure_details, enqueued_at, started_at, completed_at
		FROM transfers
		WHERE state NOT LIKE 'completed_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transfer.Snapshot
	for rows.Next() {
		var snap transfer.Snapshot
		var direction, state, failure string
		var enqueuedAt, startedAt, completedAt int64
		if err := rows.Scan(&snap.ID, &direction, &snap.Username, &snap.Group, &snap.RemoteFilename, &snap.LocalPath,
			&snap.Size, &snap.BytesTransferred, &state, &failure, &enqueuedAt, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		snap.Direction = transfer.Direction(direction)
		snap.State = transfer.State(state)
		var details failureDetails
		if err := json.Unmarshal([]byte(failure), &details); err != nil {
			return nil, err
		}
		snap.Err = details.Error
		snap.EnqueuedAt = timeOrZero(enqueuedAt)
		snap.StartedAt = timeOrZero(startedAt)
		snap.CompletedAt = timeOrZero(completedAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
