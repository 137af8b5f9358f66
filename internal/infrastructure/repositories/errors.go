package repositories

import (
	"errors"

	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// classify maps a driver error to the access error contract. Errors that
// already carry a kind pass through untouched.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	if ports.KindOf(err) != ports.KindUnknown {
		return err
	}
	switch pqCode(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return ports.NewStoreError(message, err, true)
	case sqlStateUniqueViolation:
		return ports.NewValidationError(ports.CodeDuplicateName, "a profile with this name already exists")
	case sqlStateCheckViolation:
		return ports.NewValidationError(ports.CodeInvalidGrant, "grant violates view-implied constraint")
	default:
		return ports.NewStoreError(message, err, false)
	}
}
