package database

import (
	"errors"
	"fmt"
	"strings"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"gorm.io/gorm"
)

// ErrorMapper maps database errors raised outside the repositories
// (begin, commit, migrations) to domain errors
type ErrorMapper struct{}

// NewErrorMapper creates a new ErrorMapper
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError maps a database error to a domain error
func (m *ErrorMapper) MapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	// already a domain error
	if errs.ErrorCode(err) != errs.CodeInternalServer {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrTransactionNotFound
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	// a serializable or deadlock abort means another writer won; retry on a fresh snapshot
	case strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "serialization") ||
		strings.Contains(errMsg, "could not serialize") ||
		strings.Contains(errMsg, "lock timeout"):
		return fmt.Errorf("%w: %s failed: %s", errs.ErrConcurrencyConflict, operation, err.Error())

	case strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "unique constraint"):
		return fmt.Errorf("%w: %s", errs.ErrDuplicateTransaction, err.Error())

	case strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded"):
		return fmt.Errorf("%w: %s operation timed out", errs.ErrDatabaseConnection, operation)

	default:
		return fmt.Errorf("%w: %s failed: %s", errs.ErrDatabaseConnection, operation, err.Error())
	}
}
