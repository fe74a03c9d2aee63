package validation

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/kbukum/nitai/errors"
)

// Validator collects field errors for values assembled at call time.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_ARGUMENT error listing every field error, or nil.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}

	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = e.Field + " " + e.Message
	}

	appErr := errors.InvalidArgument(v.errors[0].Field, strings.Join(messages, "; "))
	appErr.WithDetail("fields", v.errors)
	return appErr
}

// Required checks that a string is not blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// URL checks that value parses as an absolute URL using one of schemes.
func (v *Validator) URL(field, value string, schemes ...string) *Validator {
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.AddError(field, "is not a valid URL")
	case u.Host == "":
		v.AddError(field, "must be an absolute URL")
	case len(schemes) > 0 && !slices.Contains(schemes, strings.ToLower(u.Scheme)):
		v.AddError(field, fmt.Sprintf("scheme must be one of: %s", strings.Join(schemes, ", ")))
	}
	return v
}

// Method checks that value is a valid HTTP method token.
func (v *Validator) Method(field, value string) *Validator {
	if value == "" || !isToken(value) {
		v.AddError(field, fmt.Sprintf("%q is not a valid method", value))
	}
	return v
}

// HeaderName checks that name is a valid HTTP field name.
func (v *Validator) HeaderName(field, name string) *Validator {
	if !httpguts.ValidHeaderFieldName(name) {
		v.AddError(field, fmt.Sprintf("%q is not a valid header name", name))
	}
	return v
}

// HeaderValue checks that value contains no control characters.
func (v *Validator) HeaderValue(field, name, value string) *Validator {
	if !httpguts.ValidHeaderFieldValue(value) {
		v.AddError(field, fmt.Sprintf("value of %q contains invalid characters", name))
	}
	return v
}

// Range checks if a number is within a range.
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
	return v
}

// Min checks if a number meets a minimum value.
func (v *Validator) Min(field string, value, minVal int) *Validator {
	if value < minVal {
		v.AddError(field, fmt.Sprintf("must be at least %d", minVal))
	}
	return v
}

// OneOf checks if a non-empty value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" || slices.Contains(allowed, value) {
		return v
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom records message when condition is false.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}

func isToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if !httpguts.IsTokenRune(rune(s[i])) {
			return false
		}
	}
	return true
}
