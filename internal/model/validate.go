package model

import (
	"fmt"
	"strings"
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

// ValidateEvent checks an Event draft for constraint violations before it is
// appended to the ledger. It returns a *ValidationError if any rules fail, or
// nil if the draft is valid. Store-assigned fields (ID, CreatedAt) are not
// checked here.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	if !e.Type.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "type",
			Message: fmt.Sprintf("invalid value %q", e.Type),
		})
	}
	if strings.TrimSpace(e.ActorID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "actor_id", Message: "is required"})
	}
	if strings.TrimSpace(e.ChannelID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "channel_id", Message: "is required"})
	}
	if strings.TrimSpace(e.CustomerName) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "customer_name", Message: "is required"})
	}

	// Variant-specific requirements.
	switch e.Type {
	case TypeSet:
		if e.SetDate == nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "set_date", Message: "is required for set events"})
		}
	case TypeClosed:
		if e.SystemSize == nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "system_size", Message: "is required for closed events"})
		} else if *e.SystemSize <= 0 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "system_size",
				Message: fmt.Sprintf("must be positive, got %g", *e.SystemSize),
			})
		}
		if strings.TrimSpace(e.SetterID) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: "setter_id", Message: "is required for closed events"})
		}
	case TypeInstallScheduled:
		if strings.TrimSpace(e.SetterID) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: "setter_id", Message: "is required for install events"})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
