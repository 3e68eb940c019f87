// Package store is the persistence collaborator: fetch-by-id, filtered
// queries, and the merge/flush/transaction primitives the repository's
// write protocol is built on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/facet-dev/facet/internal/entity"
)

// Common store error types
var (
	// ErrNotFound is returned when no row exists for an identifier
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// SortKey is one resolved sort column with its direction
type SortKey struct {
	Column string
	Desc   bool
}

// EntityStore provides read access to persisted records
type EntityStore interface {
	// FindByID fetches one record by primary key; ErrNotFound when absent
	FindByID(ctx context.Context, class *entity.Class, id string) (*entity.Record, error)

	// Query runs a filtered, sorted, paginated equality query
	Query(ctx context.Context, class *entity.Class, filters map[string]interface{}, sort []SortKey, offset, limit int) ([]*entity.Record, error)

	// Count runs a count query sharing the same predicate set as Query
	Count(ctx context.Context, class *entity.Class, filters map[string]interface{}) (int, error)
}

// Transaction is one explicit write-protocol transaction. Database triggers
// are disabled inside its boundary and re-enabled when it ends.
type Transaction interface {
	// Merge upserts the record and refreshes its attributes from the row,
	// capturing generated, default, and trigger-computed columns.
	Merge(ctx context.Context, rec *entity.Record) error

	// Flush forces pending writes to materialize
	Flush(ctx context.Context) error

	Commit() error
	Rollback() error
}

// TransactionHandler begins write-protocol transactions
type TransactionHandler interface {
	Begin(ctx context.Context) (Transaction, error)
}

// ConvertDBError converts database-specific errors to store errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
