package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// MapError converts pgx/pgconn errors to domain errors for one entity.
// Context errors are wrapped but not mapped.
//
// A foreign key violation means a missing parent on insert (ErrNotFound) and
// surviving dependents on delete (ErrConflict). Deferred constraints report
// the same codes at commit.
func MapError(err error, entity string, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	wrap := func(target error) error {
		return fmt.Errorf("%s %s: %w", entity, id, target)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrap(err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return wrap(domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return wrap(err)
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return wrap(domain.ErrAlreadyExists)
	case "23503": // foreign_key_violation
		if strings.HasPrefix(pgErr.Message, "update or delete") {
			return fmt.Errorf("%s %s: %w (still referenced from %s via %s)", entity, id, domain.ErrConflict, pgErr.TableName, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s %s: %w (%s)", entity, id, domain.ErrNotFound, pgErr.ConstraintName)
	case "23514", "23502": // check_violation, not_null_violation
		return wrap(domain.ErrValidation)
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return wrap(domain.ErrConflict)
	}
	return wrap(err)
}
