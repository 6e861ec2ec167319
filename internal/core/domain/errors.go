package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrEmptyPayload   = errors.New("empty payload")
	ErrInvalidArchive = errors.New("payload is not a zip archive")
	ErrCorruptArchive = errors.New("corrupt zip archive")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ValidationError reports client-supplied data that failed field-level checks.
// Fields maps a field path to its messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err belongs to the client-error family that maps to 400.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrInvalidArchive) ||
		errors.Is(err, ErrCorruptArchive)
}
