package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the job database at path and
// ensures the spawn tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := validateSQLiteFilesystem(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates the job and report tables if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spawn_jobs (
  id            TEXT PRIMARY KEY,
  subworld      TEXT NOT NULL,
  nprocs        INTEGER NOT NULL,
  args          TEXT NOT NULL,
  trace         INTEGER NOT NULL DEFAULT 0,
  status        TEXT NOT NULL,
  submitted_by  TEXT NOT NULL,
  ranks         JSON,
  exit_status   INTEGER,
  created_at    TEXT NOT NULL,
  started_at    TEXT,
  completed_at  TEXT,
  last_error    TEXT
);`,
		`CREATE TABLE IF NOT EXISTS spawn_reports (
  job_id      TEXT NOT NULL REFERENCES spawn_jobs(id),
  rank        INTEGER NOT NULL,
  status      INTEGER NOT NULL,
  reported_at TEXT NOT NULL,
  PRIMARY KEY (job_id, rank)
);`,
		`CREATE INDEX IF NOT EXISTS spawn_jobs_status_created_at_idx ON spawn_jobs(status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
