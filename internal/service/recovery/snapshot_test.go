package recovery

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	postgres "github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/audit"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/backup"
	"github.com/heartmarshall/coursesync/internal/domain"
)

func newMockManager(t *testing.T) (*Manager, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewManager(discardLogger(), backup.New(mock), audit.New(mock), postgres.NewTxManager(mock)), mock
}

func TestSnapshot_Postgres_CommitsShadowAndRegistryTogether(t *testing.T) {
	t.Parallel()
	mgr, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "lessons_bak_\d{8}_\d{6}_[0-9a-f]{8}" \(LIKE "lessons" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO "lessons_bak_\d{8}_\d{6}_[0-9a-f]{8}" SELECT \* FROM "lessons"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 7))
	mock.ExpectExec(`INSERT INTO backup_snapshots`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	snap, err := mgr.Snapshot(context.Background(), "lessons", "manual")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_Postgres_RegistryFailureRollsBackShadow(t *testing.T) {
	t.Parallel()
	mgr, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "lessons_bak_`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO "lessons_bak_`).
		WillReturnResult(pgxmock.NewResult("INSERT", 7))
	mock.ExpectExec(`INSERT INTO backup_snapshots`).
		WillReturnError(errors.New("registry unavailable"))
	mock.ExpectRollback()

	_, err := mgr.Snapshot(context.Background(), "lessons", "manual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry unavailable")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_Postgres_RejectsUnknownTableBeforeBegin(t *testing.T) {
	t.Parallel()
	mgr, mock := newMockManager(t)

	_, err := mgr.Snapshot(context.Background(), "pg_authid", "manual")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
