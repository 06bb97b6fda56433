package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing jobs, song versions, and artifacts.
	ErrNotFound = errors.New("not found")
	// ErrStaleWrite is returned when a job update presents a seq token that
	// no longer matches the stored record.
	ErrStaleWrite = errors.New("job was modified concurrently")
)

// ValidationError rejects bad submission input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
