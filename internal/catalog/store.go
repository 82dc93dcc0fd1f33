// SPDX-License-Identifier: MIT
// Package catalog persists the index of completed recordings in SQLite so
// that it survives restarts.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/audio"
	applog "scribe/internal/log"
	"scribe/internal/wave"
)

// Memory is the path of a private in-memory catalog.
const Memory = ":memory:"

const schema = `
	CREATE TABLE IF NOT EXISTS recordings (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		key          TEXT NOT NULL UNIQUE,
		ticket       INTEGER NOT NULL,
		fileName     TEXT NOT NULL,
		path         TEXT NOT NULL,
		durationNs   INTEGER NOT NULL,
		size         INTEGER NOT NULL,
		sampleRate   INTEGER NOT NULL,
		channels     INTEGER NOT NULL,
		sampleFormat TEXT NOT NULL,
		createdAt    INTEGER NOT NULL
	);
`

// Store is a SQLite-backed wave.Catalog.
type Store struct {
	db  *sql.DB
	log *applog.Logger
}

var _ wave.Catalog = (*Store)(nil)

// Open opens or creates the catalog at path. Memory opens a private
// in-memory catalog.
func Open(path string) (*Store, error) {
	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// Every pooled connection to ":memory:" would see its own database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Store{db: db, log: applog.WithComponent("catalog")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records rec as the newest entry, replacing any entry with its key.
func (s *Store) Save(rec wave.Recording) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO recordings
			(key, ticket, fileName, path, durationNs, size, sampleRate, channels, sampleFormat, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Key, int64(rec.Ticket), rec.FileName, rec.Path, int64(rec.Duration), rec.Size,
		rec.SampleRate, rec.Channels, rec.SampleFormat.String(), rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.Key, err)
	}
	return nil
}

// Delete removes key. Deleting an unknown key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM recordings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM recordings`); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

// List returns every entry, oldest first. Rows that cannot be decoded are
// skipped.
func (s *Store) List() ([]wave.Recording, error) {
	rows, err := s.db.Query(`
		SELECT key, ticket, fileName, path, durationNs, size, sampleRate, channels, sampleFormat, createdAt
		FROM recordings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var recs []wave.Recording
	for rows.Next() {
		var (
			rec                wave.Recording
			ticket, durationNs int64
			format             string
			createdAt          int64
		)
		if err := rows.Scan(&rec.Key, &ticket, &rec.FileName, &rec.Path, &durationNs, &rec.Size,
			&rec.SampleRate, &rec.Channels, &format, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		sf, err := audio.ParseSampleFormat(format)
		if err != nil {
			s.log.Warnf("Skipping catalog entry %s: %v", rec.Key, err)
			continue
		}
		rec.Ticket = uint64(ticket)
		rec.Duration = time.Duration(durationNs)
		rec.SampleFormat = sf
		rec.CreatedAt = time.Unix(0, createdAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
