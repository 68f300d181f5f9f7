package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if db.Path() != dbPath {
		t.Errorf("Expected path %s, got %s", dbPath, db.Path())
	}

	// Verify file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database with nested path: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("Nested directories were not created")
	}
}

func TestSchema_TablesExist(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	for _, table := range []string{"snapshots", "raw_records"} {
		var name string
		err := db.QueryRowContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}
}

func TestMigrate_Version(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	var version int
	if err := db.QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if version != SchemaVersion() {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion())
	}
}

func TestMigrate_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := New(dbPath)
	if err != nil {
		t.Fatalf("first New() failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// A second open must not re-run applied migrations.
	second, err := New(dbPath)
	if err != nil {
		t.Fatalf("second New() failed: %v", err)
	}
	defer second.Close()
}

func TestNew_PragmasOnEveryConnection(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	db.SetMaxOpenConns(3)

	ctx := context.Background()
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		conn, err := db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() failed: %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}
	for i, conn := range conns {
		for _, tt := range tests {
			var got string
			if err := conn.QueryRowContext(ctx, "PRAGMA "+tt.pragma).Scan(&got); err != nil {
				t.Fatalf("conn %d: PRAGMA %s failed: %v", i, tt.pragma, err)
			}
			if got != tt.want {
				t.Errorf("conn %d: %s = %q, want %q", i, tt.pragma, got, tt.want)
			}
		}
	}
}

func TestFixLegacyTimeFormats(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	ctx := context.Background()
	_, err := db.ExecContext(ctx,
		`INSERT INTO snapshots (generated_at) VALUES ('2024-03-15 08:00:00 +0000 UTC')`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := db.FixLegacyTimeFormats(); err != nil {
		t.Fatalf("FixLegacyTimeFormats() failed: %v", err)
	}

	var got string
	if err := db.QueryRowContext(ctx, `SELECT generated_at FROM snapshots`).Scan(&got); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if got != "2024-03-15 08:00:00" && got != "2024-03-15T08:00:00Z" {
		t.Errorf("generated_at = %q, want truncated timestamp", got)
	}
}

func TestVacuum(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestClose(t *testing.T) {
	db := newTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Verify database is closed by trying to query
	_, err := db.QueryContext(context.Background(), "SELECT 1")
	if err == nil {
		t.Error("Expected error querying closed database")
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return db
}
