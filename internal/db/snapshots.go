package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/spendlens/internal/models"
)

// Raw record collections. Scope carries the entity or invoice table name for
// keyed collections and is empty otherwise.
const (
	collEntities      = "entities"
	collCostRecords   = "costRecords"
	collMonthlyTotals = "monthlyTotals"
	collSkus          = "licenses.skus"
	collAssignments   = "licenses.assignments"
	collUsers         = "users"
	collInvoices      = "invoices"
	collSkuPrices     = "skuPrices"
	collResources     = "resources"
)

// sqlTimeLayout matches SQLite's own datetime() output.
const sqlTimeLayout = "2006-01-02 15:04:05"

// ErrNoSnapshot is returned when the hand-off database holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot in database")

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID          int64
	GeneratedAt time.Time
	ImportedAt  time.Time
	Source      string
	Records     int
}

type recordWriter struct {
	stmt       *sql.Stmt
	snapshotID int64
	count      int
}

func (w *recordWriter) write(ctx context.Context, collection, scope string, rows []models.RawRecord) error {
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode %s record %d: %w", collection, i, err)
		}
		if _, err := w.stmt.ExecContext(ctx, w.snapshotID, collection, scope, i, string(payload)); err != nil {
			return fmt.Errorf("failed to insert %s record %d: %w", collection, i, err)
		}
		w.count++
	}
	return nil
}

// SaveSnapshot stores a complete raw snapshot in one transaction and returns
// its ID. Either every record lands or none do.
func (db *DB) SaveSnapshot(ctx context.Context, raw *models.RawSnapshot, source string) (int64, error) {
	if raw == nil {
		return 0, errors.New("snapshot is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var generated any
	if !raw.GeneratedAt.IsZero() {
		generated = raw.GeneratedAt.UTC().Format(sqlTimeLayout)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (generated_at, imported_at, source) VALUES (?, ?, ?)`,
		generated, time.Now().UTC().Format(sqlTimeLayout), source)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_records (snapshot_id, collection, scope, position, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	w := &recordWriter{stmt: stmt, snapshotID: id}
	flat := []struct {
		collection string
		rows       []models.RawRecord
	}{
		{collEntities, raw.Entities},
		{collCostRecords, raw.CostRecords},
		{collMonthlyTotals, raw.MonthlyTotals},
		{collSkuPrices, raw.SkuPrices},
		{collResources, raw.Resources},
	}
	for _, f := range flat {
		if err := w.write(ctx, f.collection, "", f.rows); err != nil {
			return 0, err
		}
	}

	for _, entity := range sortedKeys(raw.Licenses) {
		set := raw.Licenses[entity]
		if err := w.write(ctx, collSkus, entity, set.Skus); err != nil {
			return 0, err
		}
		if err := w.write(ctx, collAssignments, entity, set.Assignments); err != nil {
			return 0, err
		}
	}
	for _, entity := range sortedKeys(raw.Users) {
		if err := w.write(ctx, collUsers, entity, raw.Users[entity]); err != nil {
			return 0, err
		}
	}
	for _, table := range sortedKeys(raw.Invoices) {
		if err := w.write(ctx, collInvoices, table, raw.Invoices[table]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// LoadSnapshot rebuilds the most recent snapshot.
func (db *DB) LoadSnapshot(ctx context.Context) (*models.RawSnapshot, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest snapshot: %w", err)
	}
	return db.LoadSnapshotByID(ctx, id)
}

// LoadSnapshotByID rebuilds one stored snapshot.
func (db *DB) LoadSnapshotByID(ctx context.Context, id int64) (*models.RawSnapshot, error) {
	var generated string
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(strftime('%Y-%m-%d %H:%M:%S', generated_at), '') FROM snapshots WHERE id = ?`, id).
		Scan(&generated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d: %w", id, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %d: %w", id, err)
	}

	raw := &models.RawSnapshot{}
	if t, ok := parseTimeString(generated); ok {
		raw.GeneratedAt = t
	}

	rows, err := db.QueryContext(ctx, `
		SELECT collection, scope, payload
		FROM raw_records
		WHERE snapshot_id = ?
		ORDER BY collection, scope, position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var collection, scope, payload string
		if err := rows.Scan(&collection, &scope, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		record, err := decodeRecord(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", collection, err)
		}
		place(raw, collection, scope, record)
	}

	return raw, rows.Err()
}

// ListSnapshots returns stored snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id,
			COALESCE(strftime('%Y-%m-%d %H:%M:%S', s.generated_at), ''),
			COALESCE(strftime('%Y-%m-%d %H:%M:%S', s.imported_at), ''),
			s.source,
			COUNT(r.id)
		FROM snapshots s
		LEFT JOIN raw_records r ON r.snapshot_id = s.id
		GROUP BY s.id
		ORDER BY s.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	infos := make([]SnapshotInfo, 0)
	for rows.Next() {
		var info SnapshotInfo
		var generated, imported string
		if err := rows.Scan(&info.ID, &generated, &imported, &info.Source, &info.Records); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.GeneratedAt, _ = parseTimeString(generated)
		info.ImportedAt, _ = parseTimeString(imported)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (db *DB) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `SELECT id FROM snapshots ORDER BY id DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM raw_records WHERE snapshot_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune raw records: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return result.RowsAffected()
}

func decodeRecord(payload string) (models.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var record models.RawRecord
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

func place(raw *models.RawSnapshot, collection, scope string, record models.RawRecord) {
	switch collection {
	case collEntities:
		raw.Entities = append(raw.Entities, record)
	case collCostRecords:
		raw.CostRecords = append(raw.CostRecords, record)
	case collMonthlyTotals:
		raw.MonthlyTotals = append(raw.MonthlyTotals, record)
	case collSkuPrices:
		raw.SkuPrices = append(raw.SkuPrices, record)
	case collResources:
		raw.Resources = append(raw.Resources, record)
	case collSkus, collAssignments:
		if raw.Licenses == nil {
			raw.Licenses = make(map[string]models.RawLicenseSet)
		}
		set := raw.Licenses[scope]
		if collection == collSkus {
			set.Skus = append(set.Skus, record)
		} else {
			set.Assignments = append(set.Assignments, record)
		}
		raw.Licenses[scope] = set
	case collUsers:
		if raw.Users == nil {
			raw.Users = make(map[string][]models.RawRecord)
		}
		raw.Users[scope] = append(raw.Users[scope], record)
	case collInvoices:
		if raw.Invoices == nil {
			raw.Invoices = make(map[string][]models.RawRecord)
		}
		raw.Invoices[scope] = append(raw.Invoices[scope], record)
	}
}

// parseTimeString parses a SQLite datetime string as UTC.
func parseTimeString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(sqlTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
