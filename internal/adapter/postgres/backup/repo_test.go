package backup_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	postgres "github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/backup"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/coursesync/internal/domain"
)

func TestShadowTableName(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("a1b2c3d4-0000-4000-8000-000000000000")
	ts := time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, "lessons_bak_20250307_140509_a1b2c3d4", domain.ShadowTableName("lessons", ts, id))
}

// ---------------------------------------------------------------------------
// pgxmock
// ---------------------------------------------------------------------------

func TestRepo_Create_Mock(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	shadow := domain.ShadowTableName("lessons", ts, id)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "` + shadow + `" (LIKE "lessons" INCLUDING DEFAULTS)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "` + shadow + `" SELECT * FROM "lessons"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 42))
	mock.ExpectExec(`INSERT INTO backup_snapshots \(id,run_id,source_table,shadow_table,row_count,reason,created_at\)`).
		WithArgs(id, pgxmock.AnyArg(), "lessons", shadow, int64(42), "manual", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	snap, err := backup.New(mock).Create(context.Background(), domain.BackupSnapshot{
		ID:          id,
		SourceTable: "lessons",
		Reason:      "manual",
		CreatedAt:   ts,
	})
	require.NoError(t, err)
	assert.Equal(t, shadow, snap.ShadowTable)
	assert.Equal(t, int64(42), snap.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Create_Mock_CopyFails(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO`).WillReturnError(errors.New("disk full"))

	_, err = backup.New(mock).Create(context.Background(), domain.BackupSnapshot{SourceTable: "chapters"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_RejectsUnknownTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := backup.New(mock)
	ctx := context.Background()

	tables := []string{"courses", "users", `lessons"; DROP TABLE lessons; --`, ""}
	for _, table := range tables {
		_, err := repo.Create(ctx, domain.BackupSnapshot{SourceTable: table})
		assert.ErrorIs(t, err, domain.ErrValidation, "Create(%q)", table)

		_, err = repo.ClearTable(ctx, table)
		assert.ErrorIs(t, err, domain.ErrValidation, "ClearTable(%q)", table)

		_, err = repo.ReloadFromShadow(ctx, domain.BackupSnapshot{SourceTable: table, ShadowTable: "x"})
		assert.ErrorIs(t, err, domain.ErrValidation, "ReloadFromShadow(%q)", table)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Get_Mock_NotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM backup_snapshots WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "run_id", "source_table", "shadow_table", "row_count", "reason", "created_at"}))

	_, err = backup.New(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// PostgreSQL
// ---------------------------------------------------------------------------

// The tests below snapshot and rewrite whole tables, so they run serially.

func newRepo(t *testing.T) (*backup.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return backup.New(pool), pool
}

func TestRepo_CreateListDrop(t *testing.T) {
	repo, pool := newRepo(t)
	ctx := context.Background()

	course := testhelper.SeedCourse(t, pool)
	ch := testhelper.SeedChapter(t, pool, course.ID, "Sleep", 1)
	testhelper.SeedLesson(t, pool, ch, "Room", "", 1)

	runID := uuid.New()
	snap, err := repo.Create(ctx, domain.BackupSnapshot{SourceTable: domain.TableLessons, RunID: &runID, Reason: "test"})
	require.NoError(t, err)

	live := testhelper.CountRows(t, pool, "lessons", "")
	assert.Equal(t, int64(live), snap.RowCount)
	assert.Equal(t, live, testhelper.CountRows(t, pool, snap.ShadowTable, ""))

	got, err := repo.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ShadowTable, got.ShadowTable)
	require.NotNil(t, got.RunID)
	assert.Equal(t, runID, *got.RunID)

	byRun, err := repo.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, byRun, 1)

	listed, err := repo.List(ctx, domain.TableLessons)
	require.NoError(t, err)
	assert.NotEmpty(t, listed)
	for _, s := range listed {
		assert.Equal(t, domain.TableLessons, s.SourceTable)
	}

	older, err := repo.ListOlderThan(ctx, snap.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.NotEmpty(t, older)

	require.NoError(t, repo.Drop(ctx, snap))
	_, err = repo.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var exists bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, snap.ShadowTable).Scan(&exists))
	assert.False(t, exists, "shadow table should be dropped")
}

func TestRepo_ReloadFromShadow(t *testing.T) {
	repo, pool := newRepo(t)
	ctx := context.Background()
	txm := postgres.NewTxManager(pool)

	course := testhelper.SeedCourse(t, pool)
	ch := testhelper.SeedChapter(t, pool, course.ID, "Feeding", 1)
	lesson := testhelper.SeedLesson(t, pool, ch, "Latch", "Original latch content for the test.", 1)

	snap, err := repo.Create(ctx, domain.BackupSnapshot{SourceTable: domain.TableLessons, Reason: "test"})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE lessons SET content = 'Overwritten' WHERE id = $1`, lesson.ID)
	require.NoError(t, err)

	err = txm.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.DeferConstraints(ctx); err != nil {
			return err
		}
		if _, err := repo.ClearTable(ctx, domain.TableLessons); err != nil {
			return err
		}
		n, err := repo.ReloadFromShadow(ctx, snap)
		if err != nil {
			return err
		}
		assert.Equal(t, snap.RowCount, n)
		return nil
	})
	require.NoError(t, err)

	var content string
	require.NoError(t, pool.QueryRow(ctx, `SELECT content FROM lessons WHERE id = $1`, lesson.ID).Scan(&content))
	assert.Equal(t, "Original latch content for the test.", content)
}
