package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	runIDKey  ctxKey = "run_id"
	sourceKey ctxKey = "change_source"
)

// WithRunID stores the sync run ID in the context.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromCtx extracts the run ID from the context.
// Returns uuid.Nil and false if the value is missing, nil UUID, or wrong type.
func RunIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RunIDPtr returns the run ID as a pointer, or nil if absent.
func RunIDPtr(ctx context.Context) *uuid.UUID {
	id, ok := RunIDFromCtx(ctx)
	if !ok {
		return nil
	}
	return &id
}

// WithChangeSource stores the change-source tag in the context.
func WithChangeSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// ChangeSourceFromCtx extracts the change-source tag from the context.
// Returns an empty string if absent.
func ChangeSourceFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey).(string)
	return s
}
