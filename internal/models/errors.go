package models

import (
	"fmt"
	"strings"
)

// ValidationError carries field-level structural validation failures. These
// are caught before any network call and reported inline per field.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates an empty validation error
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Addf records a failure for a field
func (e *ValidationError) Addf(field, format string, args ...interface{}) {
	e.Fields[field] = fmt.Sprintf(format, args...)
}

// HasErrors reports whether any field failed
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError is returned when the authoritative commit endpoint rejected
// specific line items. It is the only error that routes the user backward
// through the wizard; everything already entered elsewhere is preserved.
type ConflictError struct {
	Lines []UnavailableLine
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d line item(s) no longer available", len(e.Lines))
}
