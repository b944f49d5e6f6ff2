package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tamaco/internal/common"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn picks the transaction when one is given, the pool otherwise.
func conn(db *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

// translatePgError maps constraint violations onto domain errors.
// The driver text is dropped there: it names tables and constraints.
func translatePgError(op string, err error) error {
	switch {
	case common.IsPgCode(err, common.PgUniqueViolation):
		return fmt.Errorf("%s: duplicate value: %w", op, common.ErrConflict)
	case common.IsPgCode(err, common.PgForeignKeyViolation):
		return fmt.Errorf("%s: referenced entity does not exist: %w", op, common.ErrValidation)
	case common.IsPgCode(err, common.PgCheckViolation):
		return fmt.Errorf("%s: value violates a constraint: %w", op, common.ErrValidation)
	case common.IsPgCode(err, common.PgStringTooLong):
		return fmt.Errorf("%s: value too long: %w", op, common.ErrValidation)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// likePattern wraps term for a substring ILIKE match, escaping wildcards.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
