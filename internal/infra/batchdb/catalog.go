// Package batchdb is a SQLite-backed read-side catalog of batch metadata
// (id, name, state, last_result, mtime), kept alongside the Batch
// Registry's required JSON index/batch files (spec.md §4.7, §6) so a
// `batch list`/`ps`-style query never has to re-parse every batch file on
// disk.
//
// Grounded on the teacher's internal/infra/sqlite/db.go: same WAL-mode
// open sequence, same single-writer connection pool settings, same
// upsert-by-primary-key idiom, ported from a model registry schema to a
// batch catalog schema.
package batchdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/cjgribel/eeng-core/internal/domain"
)

// Entry is one catalog row: a batch's identity, lifecycle state, and the
// outcome of its most recent task.
type Entry struct {
	ID         domain.GUID
	Name       string
	Filename   string
	State      string
	LastResult string
	MTime      time.Time
}

// Catalog wraps a SQLite connection holding the batch_catalog table.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at dir/batches.db, enabling
// WAL mode and a 5-second busy timeout (mirrors the teacher's db.Open).
func Open(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("batchdb: create dir: %w", err)
	}

	dbPath := filepath.Join(dir, "batches.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("batchdb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("batchdb: ping: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("batchdb: migrate: %w", err)
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS batch_catalog (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		filename    TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		last_result TEXT NOT NULL DEFAULT '',
		mtime       INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_catalog_state ON batch_catalog(state)`)
	return err
}

// Close shuts down the underlying connection.
func (c *Catalog) Close() error { return c.db.Close() }

// Upsert inserts or updates one catalog row, stamping mtime to now.
func (c *Catalog) Upsert(e Entry) error {
	_, err := c.db.Exec(
		`INSERT INTO batch_catalog (id, name, filename, state, last_result, mtime)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			filename=excluded.filename,
			state=excluded.state,
			last_result=excluded.last_result,
			mtime=excluded.mtime`,
		e.ID.String(), e.Name, e.Filename, e.State, e.LastResult, e.MTime.Unix(),
	)
	return err
}

// Get retrieves one catalog row by batch id.
func (c *Catalog) Get(id domain.GUID) (Entry, bool, error) {
	row := c.db.QueryRow(
		`SELECT id, name, filename, state, last_result, mtime FROM batch_catalog WHERE id = ?`,
		id.String(),
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// List returns every catalog row, most recently touched first.
func (c *Catalog) List() ([]Entry, error) {
	rows, err := c.db.Query(`SELECT id, name, filename, state, last_result, mtime FROM batch_catalog ORDER BY mtime DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes a catalog row. Deleting a nonexistent id is a no-op, not
// an error: the catalog is a derived index, never the source of truth.
func (c *Catalog) Delete(id domain.GUID) error {
	_, err := c.db.Exec(`DELETE FROM batch_catalog WHERE id = ?`, id.String())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var idStr string
	var mtime int64
	if err := s.Scan(&idStr, &e.Name, &e.Filename, &e.State, &e.LastResult, &mtime); err != nil {
		return Entry{}, err
	}
	guid, err := domain.ParseGUID(idStr)
	if err != nil {
		return Entry{}, fmt.Errorf("batchdb: scan id %q: %w", idStr, err)
	}
	e.ID = guid
	e.MTime = time.Unix(mtime, 0)
	return e, nil
}
