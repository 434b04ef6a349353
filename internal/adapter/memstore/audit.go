package memstore

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// AuditLog is the append-only audit view of a Store.
type AuditLog struct {
	s *Store
}

// Create appends one entry. A nil ID or zero CreatedAt is filled in.
func (a *AuditLog) Create(_ context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.s.now()
	}
	e.OldValue = maps.Clone(e.OldValue)
	e.NewValue = maps.Clone(e.NewValue)
	a.s.st.audit = append(a.s.st.audit, e)
	return e, nil
}

// ListByRecord returns the history of one record, oldest first.
func (a *AuditLog) ListByRecord(_ context.Context, table string, recordID uuid.UUID) ([]domain.AuditEntry, error) {
	return a.filter(func(e domain.AuditEntry) bool {
		return e.TableName == table && e.RecordID == recordID
	}), nil
}

// ListByRun returns every entry written by one run, oldest first.
func (a *AuditLog) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.AuditEntry, error) {
	return a.filter(func(e domain.AuditEntry) bool {
		return e.RunID != nil && *e.RunID == runID
	}), nil
}

// All returns every entry, oldest first.
func (a *AuditLog) All() []domain.AuditEntry {
	return a.filter(func(domain.AuditEntry) bool { return true })
}

func (a *AuditLog) filter(keep func(domain.AuditEntry) bool) []domain.AuditEntry {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []domain.AuditEntry
	for _, e := range a.s.st.audit {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(x, y domain.AuditEntry) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return out
}
