package metrics

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable marks a probe that could not read its subsystem.
var ErrSourceUnavailable = errors.New("source unavailable")

// SourceError wraps one probe failure with its group.
// Params: failing group and underlying cause.
// Returns: error matching ErrSourceUnavailable.
type SourceError struct {
	Group Group
	Err   error
}

// Error formats group and cause.
// Params: none.
// Returns: error text.
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Group, ErrSourceUnavailable.Error(), e.Err)
}

// Unwrap exposes the underlying cause.
// Params: none.
// Returns: wrapped error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrSourceUnavailable.
// Params: target error for errors.Is.
// Returns: true for ErrSourceUnavailable.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// sourceErr builds a SourceError with formatted cause.
// Params: group failing group; format/args describe the failed read.
// Returns: wrapped source error.
func sourceErr(group Group, format string, args ...any) error {
	return &SourceError{Group: group, Err: fmt.Errorf(format, args...)}
}
