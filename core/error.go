package core

import "errors"

// ValidationError is an input error. Its message is meant to be shown to the
// user as is; no state was mutated when one is returned.
type ValidationError struct {
	msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Public() string {
	return e.msg
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

var (
	ErrMissingFields      = NewValidationError("all fields required")
	ErrHandleWhitespace   = NewValidationError("no spaces in username")
	ErrHandleCharacters   = NewValidationError("invalid characters in username")
	ErrHandleLength       = NewValidationError("username: 2-20 characters")
	ErrPasswordLength     = NewValidationError("password: min 3 characters")
	ErrPasswordMismatch   = NewValidationError("passwords do not match")
	ErrConflictedUser     = NewValidationError("username already taken")
	ErrUserNotFound       = NewValidationError("user not found")
	ErrInvalidPassword    = NewValidationError("invalid password")
	ErrEmptyMessage       = NewValidationError("message is empty")
	ErrUnknownChannel     = NewValidationError("unknown channel")
	ErrInvalidCounterpart = NewValidationError("invalid conversation partner")
)

// ErrNoUser is returned by operations that need a signed in user.
var ErrNoUser = errors.New("not signed in")
