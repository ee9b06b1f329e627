package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yungbote/dcengine/internal/domain/faults"
	"gorm.io/gorm"
)

var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("store validation")
	// ErrConflict indicates optimistic/concurrency conflict.
	ErrConflict = errors.New("store conflict")
	// ErrRetryable indicates transient retryable failure.
	ErrRetryable = errors.New("store retryable")
)

// ValidationError tags an error as validation failure.
func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

// ConflictError tags an error as conflict failure.
func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.TrimSpace(pgErr.Code) == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint failed")
}

// MapError maps infrastructure failures into coded engine errors.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *faults.Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return faults.Wrap(faults.CodeValidation, op, err)
	case errors.Is(err, ErrConflict):
		return faults.Wrap(faults.CodeConflict, op, err)
	case errors.Is(err, ErrRetryable):
		return faults.Wrap(faults.CodeRetryable, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return faults.Wrap(faults.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return faults.Wrap(faults.CodeRetryable, op, err)
	case IsUniqueViolation(err):
		return faults.Wrap(faults.CodeConflict, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23503":
			return faults.Wrap(faults.CodePreconditionFailed, op, err) // foreign_key_violation
		case "40001", "40P01", "55P03":
			return faults.Wrap(faults.CodeRetryable, op, err) // serialization/deadlock/lock_not_available
		case "08000", "08003", "08006", "57P01":
			return faults.Wrap(faults.CodeUnavailable, op, err)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "timeout"):
		return faults.Wrap(faults.CodeRetryable, op, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "sql: database is closed"):
		return faults.Wrap(faults.CodeUnavailable, op, err)
	default:
		return faults.Wrap(faults.CodeInternal, op, err)
	}
}
