package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/revledger/revledger/internal/storage"
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to storage.ErrNotFound for consistent error handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapWriteError is wrapDBError for writes: constraint violations become
// storage.ErrConflict while keeping the driver message.
func (e executor) wrapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if e.dialect.IsConstraintError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConflict, err)
	}
	return wrapDBError(op, err)
}

// IsConflict checks if an error is or wraps storage.ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}

// IsNotFound checks if an error is or wraps storage.ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
