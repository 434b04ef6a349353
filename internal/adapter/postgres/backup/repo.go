// Package backup implements table snapshots as timestamped shadow tables plus
// a backup_snapshots registry, using PostgreSQL.
package backup

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	postgres "github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/domain"
)

const registry = "backup_snapshots"

var columns = []string{"id", "run_id", "source_table", "shadow_table", "row_count", "reason", "created_at"}

// Repo provides snapshot persistence backed by PostgreSQL. Statements that
// touch several tables must run inside a transaction (see postgres.TxManager).
type Repo struct {
	pool postgres.Querier
}

// New creates a new backup repository.
func New(pool postgres.Querier) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Create copies snap.SourceTable into a new shadow table and registers the
// snapshot. ShadowTable and RowCount are filled in on return.
func (r *Repo) Create(ctx context.Context, snap domain.BackupSnapshot) (domain.BackupSnapshot, error) {
	if !domain.IsBackupTable(snap.SourceTable) {
		return domain.BackupSnapshot{}, domain.NewValidationError("table", fmt.Sprintf("%q cannot be snapshotted", snap.SourceTable))
	}
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	snap.ShadowTable = domain.ShadowTableName(snap.SourceTable, snap.CreatedAt, snap.ID)

	q := postgres.QuerierFromCtx(ctx, r.pool)
	src := pgx.Identifier{snap.SourceTable}.Sanitize()
	shadow := pgx.Identifier{snap.ShadowTable}.Sanitize()

	if _, err := q.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)", shadow, src)); err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("create shadow %s: %w", snap.ShadowTable, err)
	}
	tag, err := q.Exec(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", shadow, src))
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("copy %s into %s: %w", snap.SourceTable, snap.ShadowTable, err)
	}
	snap.RowCount = tag.RowsAffected()

	query, args, err := postgres.Builder().
		Insert(registry).Columns(columns...).
		Values(snap.ID, uuidPtrToPgUUID(snap.RunID), snap.SourceTable, snap.ShadowTable,
			snap.RowCount, snap.Reason, snap.CreatedAt).
		ToSql()
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("build register snapshot: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return domain.BackupSnapshot{}, postgres.MapError(err, "backup_snapshot", snap.ID)
	}

	return snap, nil
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

// DeferConstraints defers deferrable constraint checks to commit time. It
// must run inside a transaction.
func (r *Repo) DeferConstraints(ctx context.Context) error {
	if _, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, "SET CONSTRAINTS ALL DEFERRED"); err != nil {
		return fmt.Errorf("defer constraints: %w", err)
	}
	return nil
}

// ClearTable deletes every row of a live table and returns how many were
// removed.
func (r *Repo) ClearTable(ctx context.Context, table string) (int64, error) {
	if !domain.IsBackupTable(table) {
		return 0, domain.NewValidationError("table", fmt.Sprintf("%q cannot be restored", table))
	}
	tag, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize())
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// ReloadFromShadow copies the shadow rows of snap back into its live table
// and returns how many rows were inserted. The live table must be empty.
func (r *Repo) ReloadFromShadow(ctx context.Context, snap domain.BackupSnapshot) (int64, error) {
	if !domain.IsBackupTable(snap.SourceTable) {
		return 0, domain.NewValidationError("table", fmt.Sprintf("%q cannot be restored", snap.SourceTable))
	}
	src := pgx.Identifier{snap.SourceTable}.Sanitize()
	shadow := pgx.Identifier{snap.ShadowTable}.Sanitize()

	tag, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", src, shadow))
	if err != nil {
		return 0, fmt.Errorf("reload %s from %s: %w", snap.SourceTable, snap.ShadowTable, err)
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Get returns one snapshot. Returns domain.ErrNotFound if it is unknown.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (domain.BackupSnapshot, error) {
	query, args, err := postgres.Builder().
		Select(columns...).From(registry).Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("build get snapshot: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return domain.BackupSnapshot{}, postgres.MapError(err, "backup_snapshot", id)
	}
	snap, err := pgx.CollectExactlyOneRow(rows, scanSnapshot)
	if err != nil {
		return domain.BackupSnapshot{}, postgres.MapError(err, "backup_snapshot", id)
	}
	return snap, nil
}

// List returns snapshots newest first, optionally filtered by source table.
func (r *Repo) List(ctx context.Context, table string) ([]domain.BackupSnapshot, error) {
	sel := postgres.Builder().Select(columns...).From(registry).OrderBy("created_at DESC", "id")
	if table != "" {
		sel = sel.Where(sq.Eq{"source_table": table})
	}
	return r.list(ctx, sel)
}

// ListByRun returns the snapshots taken by one run, oldest first.
func (r *Repo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.BackupSnapshot, error) {
	return r.list(ctx, postgres.Builder().
		Select(columns...).From(registry).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("created_at", "id"))
}

// ListOlderThan returns snapshots created before t, oldest first.
func (r *Repo) ListOlderThan(ctx context.Context, t time.Time) ([]domain.BackupSnapshot, error) {
	return r.list(ctx, postgres.Builder().
		Select(columns...).From(registry).
		Where(sq.Lt{"created_at": t}).
		OrderBy("created_at", "id"))
}

// Drop removes the shadow table of a snapshot and its registry row.
func (r *Repo) Drop(ctx context.Context, snap domain.BackupSnapshot) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{snap.ShadowTable}.Sanitize()); err != nil {
		return fmt.Errorf("drop shadow %s: %w", snap.ShadowTable, err)
	}

	query, args, err := postgres.Builder().Delete(registry).Where(sq.Eq{"id": snap.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build unregister snapshot: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "backup_snapshot", snap.ID)
	}
	return nil
}

func (r *Repo) list(ctx context.Context, sel sq.SelectBuilder) ([]domain.BackupSnapshot, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list snapshots: %w", err)
	}
	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

func scanSnapshot(row pgx.CollectableRow) (domain.BackupSnapshot, error) {
	var (
		s     domain.BackupSnapshot
		runID pgtype.UUID
	)
	if err := row.Scan(&s.ID, &runID, &s.SourceTable, &s.ShadowTable, &s.RowCount, &s.Reason, &s.CreatedAt); err != nil {
		return domain.BackupSnapshot{}, err
	}
	if runID.Valid {
		id := uuid.UUID(runID.Bytes)
		s.RunID = &id
	}
	return s, nil
}

func uuidPtrToPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}
