// Package recovery manages table snapshots, their restore, and the sync
// audit trail.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

type backupRepo interface {
	Create(ctx context.Context, snap domain.BackupSnapshot) (domain.BackupSnapshot, error)
	Get(ctx context.Context, id uuid.UUID) (domain.BackupSnapshot, error)
	List(ctx context.Context, table string) ([]domain.BackupSnapshot, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.BackupSnapshot, error)
	ListOlderThan(ctx context.Context, t time.Time) ([]domain.BackupSnapshot, error)
	Drop(ctx context.Context, snap domain.BackupSnapshot) error

	// Restore steps, run inside one transaction.
	DeferConstraints(ctx context.Context) error
	ClearTable(ctx context.Context, table string) (int64, error)
	ReloadFromShadow(ctx context.Context, snap domain.BackupSnapshot) (int64, error)
}

type auditRepo interface {
	Create(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error)
	ListByRecord(ctx context.Context, table string, recordID uuid.UUID) ([]domain.AuditEntry, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Manager takes and restores snapshots and writes the audit log.
type Manager struct {
	backups backupRepo
	audit   auditRepo
	tx      txManager
	log     *slog.Logger
}

// NewManager creates a new recovery Manager.
func NewManager(log *slog.Logger, backups backupRepo, audit auditRepo, tx txManager) *Manager {
	return &Manager{
		backups: backups,
		audit:   audit,
		tx:      tx,
		log:     log.With("service", "recovery"),
	}
}

// RestoreResult describes one restored table.
type RestoreResult struct {
	Snapshot domain.BackupSnapshot
	// PreRestore is the snapshot of the live table taken just before it was
	// overwritten.
	PreRestore domain.BackupSnapshot
	Cleared    int64
	Restored   int64
}

// RunRestoreResult describes the restore of every table a run snapshotted.
type RunRestoreResult struct {
	RunID  uuid.UUID
	Tables []RestoreResult
}
