package db

import (
	"context"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		generated_at DATETIME,
		imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS raw_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		collection TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_raw_records_snapshot ON raw_records(snapshot_id, collection, scope, position);
	`,
	`
	ALTER TABLE snapshots ADD COLUMN source TEXT NOT NULL DEFAULT '';
	`,
}

// SchemaVersion is the version New migrates to.
func SchemaVersion() int {
	return len(migrations)
}

func (db *DB) migrate() error {
	ctx := context.Background()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

// FixLegacyTimeFormats rewrites generated_at values that older collectors
// stored through Go's time.Time String format ("... +0000 UTC"), which
// SQLite's date functions cannot read.
func (db *DB) FixLegacyTimeFormats() error {
	query := `UPDATE snapshots
		 SET generated_at = SUBSTR(generated_at, 1, 19)
		 WHERE length(generated_at) > 19 AND generated_at LIKE '% UTC'`

	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to fix legacy time formats: %w", err)
	}
	return nil
}
