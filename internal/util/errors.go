package util

import "errors"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("resource not found")
	ErrNothingCommitted = errors.New("no rows affected")
)

// ValidationError is a caller-fixable rejection carrying a readable reason.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// WrapValidationError keeps cause for logs; clients only see reason.
func WrapValidationError(reason string, cause error) error {
	return &ValidationError{Reason: reason, Err: cause}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
