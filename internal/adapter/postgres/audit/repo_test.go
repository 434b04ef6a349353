package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/heartmarshall/coursesync/internal/adapter/postgres/audit"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/coursesync/internal/domain"
)

func newRepo(t *testing.T) (*audit.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return audit.New(pool), pool
}

func buildEntry(table string, recordID uuid.UUID, action domain.AuditAction, oldV, newV map[string]any) domain.AuditEntry {
	return domain.AuditEntry{
		ID:        uuid.New(),
		TableName: table,
		RecordID:  recordID,
		Action:    action,
		OldValue:  oldV,
		NewValue:  newV,
		Source:    domain.ChangeSourceBulkSync,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// ---------------------------------------------------------------------------
// pgxmock
// ---------------------------------------------------------------------------

func TestRepo_Create_Mock_FillsIDAndNullValues(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	recordID := uuid.New()
	mock.ExpectExec(`INSERT INTO sync_audit_log \(id,run_id,table_name,record_id,action,old_value,new_value,source,created_at\)`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "lessons", recordID, "CREATE",
			[]byte(nil), pgxmock.AnyArg(), "bulk-sync", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e, err := audit.New(mock).Create(context.Background(), domain.AuditEntry{
		TableName: "lessons",
		RecordID:  recordID,
		Action:    domain.AuditActionCreate,
		NewValue:  map[string]any{"title": "Room"},
		Source:    domain.ChangeSourceBulkSync,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID == uuid.Nil || e.CreatedAt.IsZero() {
		t.Errorf("Create should fill id and timestamp: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRepo_Create_Mock_Error(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO sync_audit_log`).WillReturnError(errors.New("connection reset"))

	if err := audit.New(mock).Log(context.Background(), buildEntry("lessons", uuid.New(), domain.AuditActionDelete, nil, nil)); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// PostgreSQL
// ---------------------------------------------------------------------------

func TestRepo_Create_RoundTrip(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	recordID := uuid.New()
	runID := uuid.New()
	in := buildEntry("lessons", recordID, domain.AuditActionUpdate,
		map[string]any{"content": "old", "order_index": 1},
		map[string]any{"content": "new", "order_index": 2},
	)
	in.RunID = &runID

	if _, err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.ListByRecord(ctx, "lessons", recordID)
	if err != nil {
		t.Fatalf("ListByRecord: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Action != domain.AuditActionUpdate || e.Source != domain.ChangeSourceBulkSync {
		t.Errorf("action/source = %s/%s", e.Action, e.Source)
	}
	if e.RunID == nil || *e.RunID != runID {
		t.Errorf("RunID = %v, want %s", e.RunID, runID)
	}
	if e.OldValue["content"] != "old" || e.NewValue["content"] != "new" {
		t.Errorf("values = %v -> %v", e.OldValue, e.NewValue)
	}
	// JSON numbers come back as float64.
	if e.NewValue["order_index"] != float64(2) {
		t.Errorf("order_index = %v", e.NewValue["order_index"])
	}
}

func TestRepo_Create_NilValuesStayNil(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	recordID := uuid.New()
	if _, err := repo.Create(ctx, buildEntry("chapters", recordID, domain.AuditActionDelete, map[string]any{"title": "x"}, nil)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.ListByRecord(ctx, "chapters", recordID)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListByRecord = (%v, %v)", got, err)
	}
	if got[0].NewValue != nil {
		t.Errorf("NewValue should be nil, got %v", got[0].NewValue)
	}
	if got[0].RunID != nil {
		t.Errorf("RunID should be nil, got %v", got[0].RunID)
	}
}

func TestRepo_ListByRecord_OldestFirstAndIsolated(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	recordID := uuid.New()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, action := range []domain.AuditAction{domain.AuditActionCreate, domain.AuditActionUpdate, domain.AuditActionDelete} {
		e := buildEntry("lessons", recordID, action, nil, nil)
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if _, err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	// Same id in another table must not leak into the history.
	if _, err := repo.Create(ctx, buildEntry("chapters", recordID, domain.AuditActionCreate, nil, nil)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.ListByRecord(ctx, "lessons", recordID)
	if err != nil {
		t.Fatalf("ListByRecord: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Action != domain.AuditActionCreate || got[2].Action != domain.AuditActionDelete {
		t.Errorf("wrong order: %s, %s, %s", got[0].Action, got[1].Action, got[2].Action)
	}
}

func TestRepo_ListByRun(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	runID := uuid.New()
	for range 2 {
		e := buildEntry("lessons", uuid.New(), domain.AuditActionCreate, nil, nil)
		e.RunID = &runID
		if _, err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListByRun(ctx, runID)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListByRun = (%d, %v), want 2", len(got), err)
	}
}
