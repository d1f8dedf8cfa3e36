package lifecycle

import (
	"errors"
	"fmt"
)

// ValidationError reports a failed lifecycle probe. Err is the client's
// native error and is never rewritten.
type ValidationError struct {
	Probe string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Probe != "" {
		return fmt.Sprintf("connection validation failed during %s: %v", e.Probe, e.Err)
	}
	return fmt.Sprintf("connection validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err as a probe failure.
func NewValidationError(probe string, err error) *ValidationError {
	return &ValidationError{Probe: probe, Err: err}
}

// IsValidationError checks if an error is a lifecycle probe failure
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
