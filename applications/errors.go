package applications

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in caller.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the store's access policy denies the caller.
	ErrForbidden = errors.New("access denied")
	// ErrNotFound is returned when the application id does not exist.
	ErrNotFound = errors.New("application not found")
	// ErrInvalidTransition is returned for a status change the lifecycle does not define.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FieldErrors maps a submission field to a user-facing message.
type FieldErrors map[string]string

// ValidationError carries field-level problems. It is always recoverable.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries field errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
