package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
)

// Error codes reported per field.
const (
	CodeRequired       = "required"
	CodeInvalidChoice  = "invalid_choice"
	CodeMaxLength      = "max_length"
	CodeInvalid        = "invalid"
	CodeUniqueTogether = "unique_together"
)

// FieldError is a single validation failure.
type FieldError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Errors maps a form field to its failures in the order they were found.
// A nil or empty Errors means the input is valid.
type Errors map[string][]FieldError

// Add appends a failure for field.
func (e Errors) Add(field, code, message string) {
	e[field] = append(e[field], FieldError{Message: message, Code: code})
}

// Has reports whether field has at least one failure.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Codes returns the codes recorded for field.
func (e Errors) Codes(field string) []string {
	codes := make([]string, 0, len(e[field]))
	for _, fe := range e[field] {
		codes = append(codes, fe.Code)
	}
	return codes
}

// JSON serializes the mapping as {"field": [{"message": ..., "code": ...}]}.
func (e Errors) JSON() string {
	b, err := json.Marshal(map[string][]FieldError(e))
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	return fmt.Sprintf("invalid memory form: %s", strings.Join(fields, ", "))
}

func requiredMessage() string {
	return "This field is required."
}

func maxLengthMessage(limit, length int) string {
	return fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", limit, length)
}

func invalidChoiceMessage() string {
	return "Select a valid choice. That choice is not one of the available choices."
}

func uniqueTogetherMessage(field string) string {
	label := strings.ToUpper(field[:1]) + field[1:]
	return fmt.Sprintf("Memory with this User and %s already exists.", label)
}

// FromWriteError converts a store write failure caused by user input into
// form errors. ok is false for infrastructure failures.
func FromWriteError(err error) (errs Errors, ok bool) {
	var conflict *registrystore.ConflictError
	if errors.As(err, &conflict) {
		errs = Errors{}
		for _, field := range conflict.Fields {
			errs.Add(field, CodeUniqueTogether, uniqueTogetherMessage(field))
		}
		return errs, len(errs) > 0
	}

	var joined interface{ Unwrap() []error }
	var all []error
	if errors.As(err, &joined) {
		all = joined.Unwrap()
	} else {
		all = []error{err}
	}
	errs = Errors{}
	for _, e := range all {
		var ce *model.ConstraintError
		if !errors.As(e, &ce) {
			return nil, false
		}
		errs.Add(ce.Field, ce.Code, ce.Message)
	}
	return errs, len(errs) > 0
}
