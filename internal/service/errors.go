package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrDuplicateRecord    = errors.New("duplicate record")
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPlanInUse          = errors.New("plan in use")
	ErrPlanExists         = errors.New("plan exists")
	ErrSetupDone          = errors.New("setup already completed")
)

// Error carries a caller-facing message for one of the sentinel kinds above.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// validID reports whether id can name a stored row. Every key is a uuid.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
