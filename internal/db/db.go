// Package db stores raw snapshots in the SQLite file the collector hands off.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

// pragmas are set through the DSN so that every pooled connection gets them.
// The collector writes while we read.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"temp_store(MEMORY)",
	"cache_size(-64000)",
}

// DB is the snapshot store.
type DB struct {
	*sql.DB
	path string
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// New opens the store at path, creating its directory, and migrates the
// schema to SchemaVersion.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := &DB{DB: sqlDB, path: path}

	steps := []struct {
		name string
		run  func() error
	}{
		{"connect to database", func() error { return sqlDB.PingContext(context.Background()) }},
		{"migrate schema", db.migrate},
		{"fix legacy time formats", db.FixLegacyTimeFormats},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}
	return db, nil
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// Close folds the WAL back into the main file and closes the pool.
func (db *DB) Close() error {
	_, _ = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return db.DB.Close()
}

// Vacuum reclaims space left by pruned snapshots.
func (db *DB) Vacuum() error {
	_, err := db.ExecContext(context.Background(), "VACUUM")
	return err
}
