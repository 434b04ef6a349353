package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

// Record appends an audit entry. It never fails the caller: write errors are
// logged at WARN. A missing run id or source is taken from ctx; the source
// falls back to bulk-sync.
func (m *Manager) Record(ctx context.Context, e domain.AuditEntry) {
	if e.RunID == nil {
		e.RunID = ctxutil.RunIDPtr(ctx)
	}
	if e.Source == "" {
		e.Source = domain.ChangeSource(ctxutil.ChangeSourceFromCtx(ctx))
	}
	if !e.Source.IsValid() {
		e.Source = domain.ChangeSourceBulkSync
	}

	if _, err := m.audit.Create(ctx, e); err != nil {
		m.log.WarnContext(ctx, "audit write failed",
			slog.String("table", e.TableName),
			slog.String("record_id", e.RecordID.String()),
			slog.String("action", e.Action.String()),
			slog.String("error", err.Error()),
		)
	}
}

// History returns the audit trail of one record, oldest first.
func (m *Manager) History(ctx context.Context, table string, id uuid.UUID) ([]domain.AuditEntry, error) {
	if table == "" {
		return nil, domain.NewValidationError("table", "required")
	}
	entries, err := m.audit.ListByRecord(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("history %s/%s: %w", table, id, err)
	}
	return entries, nil
}
