package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

// ErrNothingToRestore is returned by RestoreRun when the run took no
// snapshots.
var ErrNothingToRestore = errors.New("no snapshots for run")

// Restore replaces the live table of a snapshot with the snapshot rows. The
// live table is snapshotted first, then cleared and reloaded in one
// transaction with constraints deferred to commit.
func (m *Manager) Restore(ctx context.Context, snapshotID uuid.UUID) (RestoreResult, error) {
	snap, err := m.backups.Get(ctx, snapshotID)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("get snapshot: %w", err)
	}
	results, err := m.restore(ctx, []domain.BackupSnapshot{snap})
	if err != nil {
		return RestoreResult{}, err
	}
	return results[0], nil
}

// RestoreRun restores every table the run snapshotted to its state before
// the run, in a single transaction. When a table was snapshotted more than
// once, the earliest snapshot wins.
func (m *Manager) RestoreRun(ctx context.Context, runID uuid.UUID) (RunRestoreResult, error) {
	snaps, err := m.backups.ListByRun(ctx, runID)
	if err != nil {
		return RunRestoreResult{}, fmt.Errorf("list run snapshots: %w", err)
	}

	earliest := make(map[string]domain.BackupSnapshot)
	for _, s := range snaps {
		if cur, ok := earliest[s.SourceTable]; !ok || s.CreatedAt.Before(cur.CreatedAt) {
			earliest[s.SourceTable] = s
		}
	}
	if len(earliest) == 0 {
		return RunRestoreResult{}, fmt.Errorf("run %s: %w", runID, ErrNothingToRestore)
	}

	// Parent tables first.
	var ordered []domain.BackupSnapshot
	for _, t := range domain.BackupTables {
		if s, ok := earliest[t]; ok {
			ordered = append(ordered, s)
		}
	}

	results, err := m.restore(ctx, ordered)
	if err != nil {
		return RunRestoreResult{}, err
	}
	return RunRestoreResult{RunID: runID, Tables: results}, nil
}

// restore takes pre-restore snapshots of the affected tables, then clears
// them child-first and reloads them parent-first in one transaction.
// snaps must be in parent-to-child order.
func (m *Manager) restore(ctx context.Context, snaps []domain.BackupSnapshot) ([]RestoreResult, error) {
	// The pre-restore copies belong to this restore, not to the restored run.
	preCtx := ctx
	if _, ok := ctxutil.RunIDFromCtx(ctx); !ok {
		preCtx = ctxutil.WithRunID(ctx, uuid.New())
	}

	results := make([]RestoreResult, len(snaps))
	for i, s := range snaps {
		pre, err := m.Snapshot(preCtx, s.SourceTable, fmt.Sprintf("before restore of %s", s.ID))
		if err != nil {
			return nil, fmt.Errorf("pre-restore snapshot: %w", err)
		}
		results[i] = RestoreResult{Snapshot: s, PreRestore: pre}
	}

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.backups.DeferConstraints(ctx); err != nil {
			return err
		}
		for i := len(results) - 1; i >= 0; i-- {
			n, err := m.backups.ClearTable(ctx, results[i].Snapshot.SourceTable)
			if err != nil {
				return err
			}
			results[i].Cleared = n
		}
		for i := range results {
			n, err := m.backups.ReloadFromShadow(ctx, results[i].Snapshot)
			if err != nil {
				return err
			}
			results[i].Restored = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", tablesOf(snaps), err)
	}

	for _, r := range results {
		m.Record(ctx, domain.AuditEntry{
			TableName: r.Snapshot.SourceTable,
			RecordID:  r.Snapshot.ID,
			Action:    domain.AuditActionRestore,
			OldValue:  map[string]any{"rows": r.Cleared, "pre_restore_snapshot": r.PreRestore.ID.String()},
			NewValue:  map[string]any{"rows": r.Restored, "shadow_table": r.Snapshot.ShadowTable},
			Source:    domain.ChangeSourceRecovery,
		})
		m.log.InfoContext(ctx, "table restored",
			slog.String("table", r.Snapshot.SourceTable),
			slog.String("snapshot_id", r.Snapshot.ID.String()),
			slog.Int64("cleared", r.Cleared),
			slog.Int64("restored", r.Restored),
		)
	}
	return results, nil
}

func tablesOf(snaps []domain.BackupSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if !slices.Contains(out, s.SourceTable) {
			out = append(out, s.SourceTable)
		}
	}
	return out
}
