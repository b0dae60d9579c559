package store

import (
	"database/sql"
	"time"
)

// SearchResultFile is one file a peer reported in response to a search,
// mirroring the column shape shareindex already persists for its own
// catalog so the two stay easy to compare by hand.
type SearchResultFile struct {
	VirtualPath string
	Size        int64
	BitrateKbps int
	SampleRate  int
	DurationNS  int64
	VBR         bool
}

// SearchResponse is one peer's reply to a search, with the files it
// offered.
type SearchResponse struct {
	Username   string
	ReceivedAt time.Time
	Files      []SearchResultFile
}

// SearchStore persists outbound searches and the per-peer responses they
// gather into search.db (§6 "search.db: searches + per-peer responses +
// files").
type SearchStore struct {
	db *sql.DB
}

// OpenSearchStore opens (or creates) search.db at path.
func OpenSearchStore(path string) (*SearchStore, error) {
	db, err := openVersioned(path, createSearchTables)
	if err != nil {
		return nil, err
	}
	return &SearchStore{db: db}, nil
}

func createSearchTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE searches (
			token     TEXT PRIMARY KEY,
			query     TEXT NOT NULL,
			scope     INTEGER NOT NULL,
			issued_at INTEGER NOT NULL
		)`,
		`CREATE TABLE responses (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			token       TEXT NOT NULL REFERENCES searches(token),
			username    TEXT NOT NULL,
			received_at INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_responses_token ON responses(token)`,
		`CREATE TABLE response_files (
			response_id  INTEGER NOT NULL REFERENCES responses(id),
			virtual_path TEXT NOT NULL,
			size         INTEGER NOT NULL,
			bitrate_kbps INTEGER NOT NULL DEFAULT 0,
			sample_rate  INTEGER NOT NULL DEFAULT 0,
			duration_ns  INTEGER NOT NULL DEFAULT 0,
			vbr          INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX idx_response_files_response ON response_files(response_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SearchStore) Close() error { return s.db.Close() }

// RecordSearch logs a newly-issued outbound search.
func (s *SearchStore) RecordSearch(token, query string, scope int, issuedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO searches (token, query, scope, issued_at) VALUES (?, ?, ?, ?)`,
		token, query, scope, issuedAt.Unix())
	return err
}

// RecordResponse logs one peer's reply to an outstanding search, along
// with the files it offered.
func (s *SearchStore) RecordResponse(token, username string, files []SearchResultFile, receivedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	res, err := tx.Exec(`INSERT INTO responses (token, username, received_at) VALUES (?, ?, ?)`,
		token, username, receivedAt.Unix())
	if err != nil {
		tx.Rollback()
		return err
	}
	responseID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO response_files (response_id, virtual_path, size, bitrate_kbps, sample_rate, duration_ns, vbr)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		var vbr int
		if f.VBR {
			vbr = 1
		}
		if _, err := stmt.Exec(responseID, f.VirtualPath, f.Size, f.BitrateKbps, f.SampleRate, f.DurationNS, vbr); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ResponsesForSearch returns every response recorded for token, most
// recent first, with their files attached.
func (s *SearchStore) ResponsesForSearch(token string) ([]SearchResponse, error) {
	rows, err := s.db.Query(`
		SELECT id, username, received_at FROM responses
		WHERE token = ?
		ORDER BY received_at DESC`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type rawResponse struct {
		id   int64
		resp SearchResponse
	}
	var raws []rawResponse
	for rows.Next() {
		var r rawResponse
		var receivedAt int64
		if err := rows.Scan(&r.id, &r.resp.Username, &receivedAt); err != nil {
			return nil, err
		}
		r.resp.ReceivedAt = time.Unix(receivedAt, 0)
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SearchResponse, len(raws))
	for i, r := range raws {
		files, err := s.filesForResponse(r.id)
		if err != nil {
			return nil, err
		}
		resp := r.resp
		resp.Files = files
		out[i] = resp
	}
	return out, nil
}

func (s *SearchStore) filesForResponse(responseID int64) ([]SearchResultFile, error) {
	rows, err := s.db.Query(`
		SELECT virtual_path, size, bitrate_kbps, sample_rate, duration_ns, vbr
		FROM response_files WHERE response_id = ?`, responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchResultFile
	for rows.Next() {
		var f SearchResultFile
		var vbr int
		if err := rows.Scan(&f.VirtualPath, &f.Size, &f.BitrateKbps, &f.SampleRate, &f.DurationNS, &vbr); err != nil {
			return nil, err
		}
		f.VBR = vbr != 0
		out = append(out, f)
	}
	return out, rows.Err()
}
