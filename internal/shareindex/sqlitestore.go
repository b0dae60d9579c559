package shareindex

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// persistCatalog writes found to a fresh on-disk FTS5-backed table at
// dbPath, per §4.2 "Storage mode: on-disk... backed by a local full-text-
// search-capable embedded store". The in-memory token index built by
// buildCatalog still serves every query; this is the durable copy a
// restarting daemon loads from instead of re-walking every configured root.
func persistCatalog(dbPath string, found []indexedFile) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open share index db: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(`DROP TABLE IF EXISTS files`); err != nil {
		return err
	}
	if _, err := db.Exec(`DROP TABLE IF EXISTS files_fts`); err != nil {
		return err
	}
	if _, err := db.Exec(`
		CREATE TABLE files (
			virtual_path TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			local_path   TEXT NOT NULL,
			size         INTEGER NOT NULL,
			mod_time     INTEGER NOT NULL,
			bitrate_kbps INTEGER NOT NULL DEFAULT 0,
			sample_rate  INTEGER NOT NULL DEFAULT 0,
			duration_ns  INTEGER NOT NULL DEFAULT 0,
			vbr          INTEGER NOT NULL DEFAULT 0,
			hidden       INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		return err
	}
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE files_fts USING fts5(
			virtual_path, content=files, content_rowid=rowid
		)`); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO files (virtual_path, name, local_path, size, mod_time, bitrate_kbps, sample_rate, duration_ns, vbr, hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range found {
		var bitrate, sampleRate int
		var duration int64
		var vbr int
		if f.Audio != nil {
			bitrate = f.Audio.BitrateKbps
			sampleRate = f.Audio.SampleRate
			duration = int64(f.Audio.Duration)
			if f.Audio.VBR {
				vbr = 1
			}
		}
		var hidden int
		if f.Hidden {
			hidden = 1
		}
		if _, err := stmt.Exec(f.VirtualPath, f.Name, f.LocalPath, f.Size, f.ModTime.UnixNano(), bitrate, sampleRate, duration, vbr, hidden); err != nil {
			tx.Rollback()
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO files_fts(files_fts) VALUES('rebuild')`); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// loadPersistedCatalog reads back every file row from dbPath, for a
// warm start that skips the filesystem walk. Returns (nil, nil) if dbPath
// doesn't exist or has no files table yet.
func loadPersistedCatalog(dbPath string) ([]indexedFile, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open share index db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT virtual_path, name, local_path, size, mod_time, bitrate_kbps, sample_rate, duration_ns, vbr, hidden FROM files`)
	if err != nil {
		// No table yet means nothing has ever been persisted.
		return nil, nil
	}
	defer rows.Close()

	var out []indexedFile
	for rows.Next() {
		var f indexedFile
		var modNanos, durationNanos int64
		var bitrate, sampleRate, vbr, hidden int
		if err := rows.Scan(&f.VirtualPath, &f.Name, &f.LocalPath, &f.Size, &modNanos, &bitrate, &sampleRate, &durationNanos, &vbr, &hidden); err != nil {
			return nil, err
		}
		f.ModTime = time.Unix(0, modNanos)
		f.Hidden = hidden != 0
		if bitrate > 0 || sampleRate > 0 {
			f.Audio = &AudioMetadata{
				BitrateKbps: bitrate,
				SampleRate:  sampleRate,
				Duration:    time.Duration(durationNanos),
				VBR:         vbr != 0,
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
