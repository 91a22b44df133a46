package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidState reports misuse of a unit of work, such as beginning a
	// second transaction or committing when none is open.
	ErrInvalidState = errors.New("invalid unit of work state")

	ErrNotFound = errors.New("resource not found")

	// ErrConflict reports a concurrent mutation detected by the store or the fabric.
	ErrConflict = errors.New("resource conflict")

	// ErrUnavailable reports a fabric timeout or connection failure.
	ErrUnavailable = errors.New("fabric service unavailable")

	ErrAllocationExhausted = errors.New("no vlan id available")
)

// ValidationError is a rejected payload, optionally naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Message)
}

// PartialApplicationError reports a reconciliation that mutated the fabric
// before failing. Completed lists what had been applied, Phase names the
// operation that failed.
type PartialApplicationError struct {
	Phase     string
	Completed []string
	Err       error
}

func (e *PartialApplicationError) Error() string {
	return fmt.Sprintf("partially applied (completed: %s): %s failed: %v",
		strings.Join(e.Completed, ", "), e.Phase, e.Err)
}

func (e *PartialApplicationError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
