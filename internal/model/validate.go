package model

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// CurrencyCodeLength is the fixed width of Price.Currency.
const CurrencyCodeLength = 3

// ValidateOccurrence checks an Occurrence for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if it is valid.
func ValidateOccurrence(o *Occurrence) error {
	var ve ValidationError

	title := strings.TrimSpace(o.Title)
	if title == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "is required"})
	} else if len([]rune(o.Title)) > MaxTitleLength {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "title",
			Message: fmt.Sprintf("must be %d characters or fewer", MaxTitleLength),
		})
	}

	if o.ID < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "must not be negative"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidatePrice checks a Price for constraint violations.
func ValidatePrice(p *Price) error {
	var ve ValidationError

	if p.OccurrenceID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "occurrence_id", Message: "is required"})
	}

	if !isCurrencyCode(p.Currency) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "currency",
			Message: fmt.Sprintf("must be a %d-letter code, got %q", CurrencyCodeLength, p.Currency),
		})
	}

	if p.Value.Form != apd.Finite {
		ve.Errors = append(ve.Errors, FieldError{Field: "value", Message: "must be a finite number"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func isCurrencyCode(s string) bool {
	if len(s) != CurrencyCodeLength {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
