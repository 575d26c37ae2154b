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

// OpenSQLite opens (and creates if needed) the catalog database at path and
// ensures required tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckLocal(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas below are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
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

// BootstrapSQLite creates catalog tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
  id          TEXT PRIMARY KEY,
  root        TEXT NOT NULL,
  started_at  TEXT NOT NULL,
  finished_at TEXT
);`,
		`CREATE TABLE IF NOT EXISTS archives (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  path        TEXT NOT NULL,
  digest      TEXT,
  class_count INTEGER NOT NULL DEFAULT 0,
  recorded_at TEXT NOT NULL,
  UNIQUE(scan_id, path)
);`,
		`CREATE TABLE IF NOT EXISTS classes (
  archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
  file       TEXT NOT NULL,
  name       TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS standalone (
  scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  path        TEXT NOT NULL,
  name        TEXT NOT NULL,
  recorded_at TEXT NOT NULL,
  UNIQUE(scan_id, path)
);`,
		`CREATE TABLE IF NOT EXISTS failures (
  scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  source      TEXT NOT NULL,
  detail      TEXT NOT NULL,
  recorded_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS classes_name_idx ON classes(name);`,
		`CREATE INDEX IF NOT EXISTS classes_archive_idx ON classes(archive_id);`,
		`CREATE INDEX IF NOT EXISTS standalone_name_idx ON standalone(name);`,
		`CREATE INDEX IF NOT EXISTS scans_started_at_idx ON scans(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
