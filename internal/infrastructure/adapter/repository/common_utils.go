package repository

import (
	"errors"
	"fmt"
	"strings"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
)

// Driver messages for postgres and sqlite, lowercased
var (
	duplicateKeyMarkers = []string{"duplicate key", "unique constraint"}
	lockMarkers         = []string{"deadlock", "lock wait timeout", "could not serialize access", "serialization failure", "database is locked"}
)

func containsAny(msg string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isDuplicateKey(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), duplicateKeyMarkers)
}

func isLockConflict(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), lockMarkers)
}

// mapDBError turns a driver error into one of the three outcomes the use cases
// act on. Lock and serialization failures become concurrency conflicts so the
// caller retries with a fresh snapshot.
func mapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrDuplicateTransaction), errors.Is(err, errs.ErrConcurrencyConflict),
		errors.Is(err, errs.ErrDatabaseConnection):
		return err
	case isDuplicateKey(err):
		return fmt.Errorf("%w: %s", errs.ErrDuplicateTransaction, err.Error())
	case isLockConflict(err):
		return fmt.Errorf("%w: %s", errs.ErrConcurrencyConflict, err.Error())
	default:
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, err.Error())
	}
}
