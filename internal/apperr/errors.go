// Package apperr defines the error taxonomy shared by the domain packages
// and translated to HTTP responses by the api package.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when a caller-side policy refuses an action.
var ErrForbidden = errors.New("action not permitted")

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports schema constraint violations.
type ValidationError struct {
	Fields []FieldError
}

// NewValidation builds a ValidationError from field/message pairs.
func NewValidation(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Field is shorthand for a single-field ValidationError.
func Field(field, msg string) *ValidationError {
	return NewValidation(FieldError{Field: field, Message: msg})
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Map returns the field errors keyed by field name.
func (e *ValidationError) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// ConflictError reports a duplicate unique key or a stale write.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	if e.Key == "" {
		return e.Resource + " already exists"
	}
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// NotFoundError reports a lookup by id that returned nothing.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound is shorthand for a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// DomainConflictError reports a time-slot overlap detected before a write.
type DomainConflictError struct {
	Day       string
	StartTime string
	EndTime   string
	With      string // "HH:MM-HH:MM" of the clashing slot
}

func (e *DomainConflictError) Error() string {
	return fmt.Sprintf("time conflict on %s: %s-%s overlaps existing slot %s", e.Day, e.StartTime, e.EndTime, e.With)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsDomainConflict(err error) bool {
	var d *DomainConflictError
	return errors.As(err, &d)
}
