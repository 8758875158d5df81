package datastore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/waypoint/pkg/apperr"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = apperr.New(apperr.KindNotFound, "not found")

	// ErrValidation is wrapped by every ValidationError
	ErrValidation = apperr.New(apperr.KindValidation, "validation failed")
)

// FieldError names one failed constraint
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError reports the constraints an entity failed
type ValidationError struct {
	Entity string       `json:"entity"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s failed %s", f.Field, f.Rule))
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// toValidationError converts validator output into a ValidationError
func toValidationError(entity string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Entity: entity, Fields: []FieldError{{Field: "-", Rule: err.Error()}}}
	}
	ve := &ValidationError{Entity: entity}
	for _, fe := range fieldErrs {
		ve.Fields = append(ve.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return ve
}
