package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrClosed is returned for operations submitted after Registry.Close.
	ErrClosed = errors.New("memory: registry closed")
	// ErrUnknownIntent is returned by Dispatch for an unrecognised intent.
	ErrUnknownIntent = errors.New("memory: unknown intent")
)

// ValidationError reports malformed operation input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "memory: invalid input"
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
	return "memory: invalid input: " + strings.Join(parts, "; ")
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// OverloadedError indicates a session mailbox is full. The operation was not
// applied.
type OverloadedError struct {
	SessionID string
	Depth     int
}

func (e *OverloadedError) Error() string {
	if e == nil {
		return "memory: session is overloaded"
	}
	return fmt.Sprintf("memory: session %q is overloaded (%d queued)", e.SessionID, e.Depth)
}

func IsOverloaded(err error) bool {
	var target *OverloadedError
	return errors.As(err, &target)
}
