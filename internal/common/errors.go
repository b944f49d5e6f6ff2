package common

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("requested resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden access")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict") // duplicate name, entity still referenced, last admin
	ErrValidation   = errors.New("validation failed")
)

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	PgUniqueViolation     = "23505"
	PgForeignKeyViolation = "23503"
	PgCheckViolation      = "23514"
	PgStringTooLong       = "22001"
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
// Conflicts answer 400: the SPA treats duplicate names and referenced
// entities as input problems.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusBadRequest
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgUniqueViolation, PgForeignKeyViolation, PgCheckViolation, PgStringTooLong:
			return http.StatusBadRequest
		}
	}

	return http.StatusInternalServerError
}

// IsPgCode reports whether err wraps a PostgreSQL error with the given SQLSTATE.
func IsPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
