package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// tableRows is a frozen copy of one table. Only the field matching the
// source table is set.
type tableRows struct {
	chapters []domain.Chapter
	lessons  []domain.Lesson
	progress []domain.LessonProgress
	details  []domain.LessonContentDetail
}

func (t tableRows) len() int {
	return len(t.chapters) + len(t.lessons) + len(t.progress) + len(t.details)
}

// Backups is the snapshot view of a Store.
type Backups struct {
	s *Store
}

// Create copies snap.SourceTable into a shadow copy and registers it.
func (b *Backups) Create(_ context.Context, snap domain.BackupSnapshot) (domain.BackupSnapshot, error) {
	if !domain.IsBackupTable(snap.SourceTable) {
		return domain.BackupSnapshot{}, domain.NewValidationError("table", fmt.Sprintf("%q cannot be snapshotted", snap.SourceTable))
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = b.s.now()
	}
	snap.ShadowTable = domain.ShadowTableName(snap.SourceTable, snap.CreatedAt, snap.ID)
	if _, ok := b.s.st.shadows[snap.ShadowTable]; ok {
		return domain.BackupSnapshot{}, fmt.Errorf("backup_snapshot %s: %w", snap.ID, domain.ErrAlreadyExists)
	}

	rows := b.s.copyTable(snap.SourceTable)
	snap.RowCount = int64(rows.len())
	b.s.st.shadows[snap.ShadowTable] = rows
	b.s.st.snapshots[snap.ID] = snap
	return snap, nil
}

// DeferConstraints defers reference checks to commit. It must run inside
// RunInTx.
func (b *Backups) DeferConstraints(ctx context.Context) error {
	tx := txFromCtx(ctx)
	if tx == nil {
		return fmt.Errorf("defer constraints: no transaction")
	}
	tx.deferred = true
	return nil
}

// ClearTable deletes every row of a live table.
func (b *Backups) ClearTable(ctx context.Context, table string) (int64, error) {
	if !domain.IsBackupTable(table) {
		return 0, domain.NewValidationError("table", fmt.Sprintf("%q cannot be restored", table))
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	saved := b.s.st.clone()
	var n int
	switch table {
	case domain.TableChapters:
		n = len(b.s.st.chapters)
		b.s.st.chapters = make(map[uuid.UUID]domain.Chapter)
	case domain.TableLessons:
		n = len(b.s.st.lessons)
		b.s.st.lessons = make(map[uuid.UUID]domain.Lesson)
	case domain.TableLessonProgress:
		n = len(b.s.st.progress)
		b.s.st.progress = make(map[uuid.UUID]domain.LessonProgress)
	case domain.TableContentDetails:
		n = len(b.s.st.details)
		b.s.st.details = make(map[uuid.UUID]domain.LessonContentDetail)
	}
	if !deferred(ctx) {
		if err := b.s.checkRefs(); err != nil {
			b.s.st = saved
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return int64(n), nil
}

// ReloadFromShadow copies the shadow rows of snap back into its live table.
func (b *Backups) ReloadFromShadow(ctx context.Context, snap domain.BackupSnapshot) (int64, error) {
	if !domain.IsBackupTable(snap.SourceTable) {
		return 0, domain.NewValidationError("table", fmt.Sprintf("%q cannot be restored", snap.SourceTable))
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	rows, ok := b.s.st.shadows[snap.ShadowTable]
	if !ok {
		return 0, fmt.Errorf("reload %s: shadow %s: %w", snap.SourceTable, snap.ShadowTable, domain.ErrNotFound)
	}
	saved := b.s.st.clone()
	n, err := b.s.reload(rows)
	if err == nil && !deferred(ctx) {
		err = b.s.checkRefs()
	}
	if err != nil {
		b.s.st = saved
		return 0, fmt.Errorf("reload %s: %w", snap.SourceTable, err)
	}
	return n, nil
}

// reload inserts frozen rows into the live tables. Callers hold mu.
func (s *Store) reload(rows tableRows) (int64, error) {
	for _, ch := range rows.chapters {
		if _, dup := s.st.chapters[ch.ID]; dup {
			return 0, fmt.Errorf("chapter %s: %w", ch.ID, domain.ErrAlreadyExists)
		}
		s.st.chapters[ch.ID] = ch
	}
	for _, l := range rows.lessons {
		if _, dup := s.st.lessons[l.ID]; dup {
			return 0, fmt.Errorf("lesson %s: %w", l.ID, domain.ErrAlreadyExists)
		}
		s.st.lessons[l.ID] = l
	}
	for _, p := range rows.progress {
		if _, dup := s.st.progress[p.ID]; dup {
			return 0, fmt.Errorf("lesson_progress %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		s.st.progress[p.ID] = p
	}
	for _, d := range rows.details {
		if _, dup := s.st.details[d.ID]; dup {
			return 0, fmt.Errorf("lesson_content_details %s: %w", d.ID, domain.ErrAlreadyExists)
		}
		s.st.details[d.ID] = d
	}
	return int64(rows.len()), nil
}

// Get returns one snapshot.
func (b *Backups) Get(_ context.Context, id uuid.UUID) (domain.BackupSnapshot, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	snap, ok := b.s.st.snapshots[id]
	if !ok {
		return domain.BackupSnapshot{}, fmt.Errorf("backup_snapshot %s: %w", id, domain.ErrNotFound)
	}
	return snap, nil
}

// List returns snapshots newest first, optionally filtered by source table.
func (b *Backups) List(_ context.Context, table string) ([]domain.BackupSnapshot, error) {
	out := b.filter(func(s domain.BackupSnapshot) bool { return table == "" || s.SourceTable == table })
	slices.Reverse(out)
	return out, nil
}

// ListByRun returns the snapshots taken by one run, oldest first.
func (b *Backups) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.BackupSnapshot, error) {
	return b.filter(func(s domain.BackupSnapshot) bool { return s.RunID != nil && *s.RunID == runID }), nil
}

// ListOlderThan returns snapshots created before t, oldest first.
func (b *Backups) ListOlderThan(_ context.Context, t time.Time) ([]domain.BackupSnapshot, error) {
	return b.filter(func(s domain.BackupSnapshot) bool { return s.CreatedAt.Before(t) }), nil
}

// Drop removes a snapshot and its shadow copy.
func (b *Backups) Drop(_ context.Context, snap domain.BackupSnapshot) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	delete(b.s.st.shadows, snap.ShadowTable)
	delete(b.s.st.snapshots, snap.ID)
	return nil
}

func (b *Backups) filter(keep func(domain.BackupSnapshot) bool) []domain.BackupSnapshot {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	var out []domain.BackupSnapshot
	for _, s := range b.s.st.snapshots {
		if keep(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(x, y domain.BackupSnapshot) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID.String(), y.ID.String())
	})
	return out
}

// copyTable freezes the current rows of a live table. Callers hold mu.
func (s *Store) copyTable(table string) tableRows {
	var rows tableRows
	switch table {
	case domain.TableChapters:
		rows.chapters = slices.Collect(maps.Values(s.st.chapters))
	case domain.TableLessons:
		rows.lessons = slices.Collect(maps.Values(s.st.lessons))
	case domain.TableLessonProgress:
		rows.progress = slices.Collect(maps.Values(s.st.progress))
	case domain.TableContentDetails:
		rows.details = slices.Collect(maps.Values(s.st.details))
	}
	return rows
}
