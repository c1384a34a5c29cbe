package store

import (
	"fmt"
	"strings"
)

// NotFoundError indicates the resource was not found (or belongs to another user).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError indicates a uniqueness violation. Fields names the
// columns whose values are already taken by the same owner.
type ConflictError struct {
	Message string
	Code    string
	Fields  []string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("conflict on %s", strings.Join(e.Fields, ", "))
}
