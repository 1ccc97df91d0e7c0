package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a domain error so callers can branch without string
// matching.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindAlreadyExists   Kind = "already_exists"
	KindInvalidState    Kind = "invalid_state"
	KindCreditBlocked   Kind = "credit_blocked"
	KindConflict        Kind = "conflict"
)

// DomainError is a business rule violation, as opposed to an infrastructure
// failure.
type DomainError struct {
	Kind    Kind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Errf builds a DomainError with a formatted message.
func Errf(kind Kind, format string, args ...any) error {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed. Non-domain errors
// (and nil) report an empty kind.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
