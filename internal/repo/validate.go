package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facet-dev/facet/internal/entity"
)

// ValidationErrors contains constraint violations for a record, keyed by
// property path.
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates an empty ValidationErrors
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: make(map[string][]string)}
}

// Add adds a violation for a property path
func (ve *ValidationErrors) Add(property, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[property] = append(ve.Fields[property], message)
}

// HasErrors returns true if any violation was recorded
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	properties := make([]string, 0, len(ve.Fields))
	for property := range ve.Fields {
		properties = append(properties, property)
	}
	sort.Strings(properties)

	var messages []string
	for _, property := range properties {
		for _, msg := range ve.Fields[property] {
			messages = append(messages, fmt.Sprintf("%s: %s", property, msg))
		}
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// ObjectValidator validates a populated record against its class's
// declared constraints.
type ObjectValidator interface {
	Validate(rec *entity.Record) *ValidationErrors
}

// constraintValidator is the default validator: required properties must
// carry a value, required references must be loaded.
type constraintValidator struct{}

// NewConstraintValidator creates the default object validator
func NewConstraintValidator() ObjectValidator {
	return &constraintValidator{}
}

// Validate checks required properties. The returned value is nil when the
// record is valid.
func (v *constraintValidator) Validate(rec *entity.Record) *ValidationErrors {
	errs := NewValidationErrors()

	for name, prop := range rec.Class().Properties {
		if !prop.Required {
			continue
		}
		if prop.Kind == entity.PropReference {
			if rec.Relation(name) == nil {
				errs.Add(name, "is required")
			}
			continue
		}
		if value, ok := rec.Attributes()[name]; !ok || value == nil {
			errs.Add(name, "is required")
		}
	}

	if !errs.HasErrors() {
		return nil
	}
	return errs
}

// filterIdentityViolations drops violations whose property path is exactly
// the identity property: identity is server-assigned and may legitimately
// be empty before assignment. Returns nil when nothing else remains.
func filterIdentityViolations(errs *ValidationErrors, class *entity.Class) *ValidationErrors {
	if errs == nil || !errs.HasErrors() {
		return nil
	}

	filtered := NewValidationErrors()
	for property, messages := range errs.Fields {
		if property == class.IdentityProperty {
			continue
		}
		for _, msg := range messages {
			filtered.Add(property, msg)
		}
	}

	if !filtered.HasErrors() {
		return nil
	}
	return filtered
}
