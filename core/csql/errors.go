package csql

import (
	"errors"

	"github.com/lib/pq"
)

// Constraint violations reported by postgres. Use errors.Is on errors returned
// by Classify.
var (
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrNotNullViolation    = errors.New("not null violation")
)

// postgres SQLSTATE codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUniqueViolation     pq.ErrorCode = "23505"
	codeForeignKeyViolation pq.ErrorCode = "23503"
	codeNotNullViolation    pq.ErrorCode = "23502"
)

// ConstraintError is a constraint violation together with the original driver error
type ConstraintError struct {
	Kind       error
	Constraint string
	Err        *pq.Error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return e.Kind.Error() + " (" + e.Constraint + "): " + e.Err.Message
	}
	return e.Kind.Error() + ": " + e.Err.Message
}

// Is reports whether target is the kind of this violation
func (e *ConstraintError) Is(target error) bool { return target == e.Kind }

// Unwrap returns the driver error
func (e *ConstraintError) Unwrap() error { return e.Err }

// Classify turns postgres constraint violations into a *ConstraintError. All other
// errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	var kind error
	switch pqErr.Code {
	case codeUniqueViolation:
		kind = ErrUniqueViolation
	case codeForeignKeyViolation:
		kind = ErrForeignKeyViolation
	case codeNotNullViolation:
		kind = ErrNotNullViolation
	default:
		return err
	}
	return &ConstraintError{Kind: kind, Constraint: pqErr.Constraint, Err: pqErr}
}
