// Package audit implements the sync audit log repository using PostgreSQL.
// The log is append-only: no update or delete operations are exposed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	postgres "github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/domain"
)

const table = "sync_audit_log"

var columns = []string{"id", "run_id", "table_name", "record_id", "action", "old_value", "new_value", "source", "created_at"}

// Repo provides audit log persistence backed by PostgreSQL.
type Repo struct {
	pool postgres.Querier
}

// New creates a new audit repository.
func New(pool postgres.Querier) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Create appends one audit entry. A nil ID or zero CreatedAt is filled in.
func (r *Repo) Create(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	oldJSON, err := marshalValue(e.OldValue)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_entry %s marshal old value: %w", e.ID, err)
	}
	newJSON, err := marshalValue(e.NewValue)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_entry %s marshal new value: %w", e.ID, err)
	}

	query, args, err := postgres.Builder().
		Insert(table).Columns(columns...).
		Values(e.ID, uuidPtrToPgUUID(e.RunID), e.TableName, e.RecordID, string(e.Action),
			oldJSON, newJSON, string(e.Source), e.CreatedAt).
		ToSql()
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("build insert audit_entry: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, query, args...); err != nil {
		return domain.AuditEntry{}, postgres.MapError(err, "audit_entry", e.ID)
	}
	return e, nil
}

// Log appends an entry without returning it.
func (r *Repo) Log(ctx context.Context, e domain.AuditEntry) error {
	_, err := r.Create(ctx, e)
	return err
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// ListByRecord returns the history of one record, oldest first.
func (r *Repo) ListByRecord(ctx context.Context, tableName string, recordID uuid.UUID) ([]domain.AuditEntry, error) {
	return r.list(ctx, sq.Eq{"table_name": tableName, "record_id": recordID})
}

// ListByRun returns every entry written by one run, oldest first.
func (r *Repo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.AuditEntry, error) {
	return r.list(ctx, sq.Eq{"run_id": runID})
}

func (r *Repo) list(ctx context.Context, where sq.Eq) ([]domain.AuditEntry, error) {
	query, args, err := postgres.Builder().
		Select(columns...).From(table).
		Where(where).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit_entries: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit_entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan audit_entries: %w", err)
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

func scanEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e                domain.AuditEntry
		runID            pgtype.UUID
		action, source   string
		oldJSON, newJSON []byte
	)
	if err := row.Scan(&e.ID, &runID, &e.TableName, &e.RecordID, &action, &oldJSON, &newJSON, &source, &e.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}
	e.Action = domain.AuditAction(action)
	e.Source = domain.ChangeSource(source)
	if runID.Valid {
		id := uuid.UUID(runID.Bytes)
		e.RunID = &id
	}

	var err error
	if e.OldValue, err = unmarshalValue(oldJSON); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_entry %s unmarshal old value: %w", e.ID, err)
	}
	if e.NewValue, err = unmarshalValue(newJSON); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_entry %s unmarshal new value: %w", e.ID, err)
	}
	return e, nil
}

// marshalValue encodes a value map as JSONB; nil stays NULL.
func marshalValue(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalValue(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	m := make(map[string]any)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// uuidPtrToPgUUID converts a *uuid.UUID to pgtype.UUID (nil -> NULL).
func uuidPtrToPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}
