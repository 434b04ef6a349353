package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

// Snapshot copies a live table into a new shadow table in one transaction.
// The snapshot is tagged with the run id carried by ctx, if any.
func (m *Manager) Snapshot(ctx context.Context, table, reason string) (domain.BackupSnapshot, error) {
	if !domain.IsBackupTable(table) {
		return domain.BackupSnapshot{}, domain.NewValidationError("table", fmt.Sprintf("%q cannot be snapshotted", table))
	}

	// Shadow table, copy and registry row commit together, so a failed
	// snapshot leaves no unregistered shadow table behind.
	var snap domain.BackupSnapshot
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		snap, err = m.backups.Create(ctx, domain.BackupSnapshot{
			RunID:       ctxutil.RunIDPtr(ctx),
			SourceTable: table,
			Reason:      reason,
		})
		return err
	})
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("snapshot %s: %w", table, err)
	}

	m.log.InfoContext(ctx, "snapshot taken",
		slog.String("table", table),
		slog.String("shadow", snap.ShadowTable),
		slog.Int64("rows", snap.RowCount),
		slog.String("reason", reason),
	)
	return snap, nil
}

// SnapshotTables snapshots several tables for one run. It stops at the first
// failure and returns the snapshots taken so far.
func (m *Manager) SnapshotTables(ctx context.Context, tables []string, reason string) ([]domain.BackupSnapshot, error) {
	out := make([]domain.BackupSnapshot, 0, len(tables))
	for _, t := range tables {
		snap, err := m.Snapshot(ctx, t, reason)
		if err != nil {
			return out, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// ListSnapshots returns snapshots newest first. An empty table lists all.
func (m *Manager) ListSnapshots(ctx context.Context, table string) ([]domain.BackupSnapshot, error) {
	if table != "" && !domain.IsBackupTable(table) {
		return nil, domain.NewValidationError("table", fmt.Sprintf("%q has no snapshots", table))
	}
	snaps, err := m.backups.List(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Prune drops every snapshot created before cutoff. A failed drop is logged
// and skipped; the number of dropped snapshots is returned with the first
// error.
func (m *Manager) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	old, err := m.backups.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list old snapshots: %w", err)
	}

	var (
		dropped  int
		firstErr error
	)
	for _, snap := range old {
		if err := m.backups.Drop(ctx, snap); err != nil {
			m.log.WarnContext(ctx, "drop snapshot failed",
				slog.String("snapshot_id", snap.ID.String()),
				slog.String("shadow", snap.ShadowTable),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("drop %s: %w", snap.ShadowTable, err)
			}
			continue
		}
		dropped++
	}
	return dropped, firstErr
}
