package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const (
	MaxNameLength        = 100
	MaxLocationLength    = 100
	MaxDescriptionLength = 250
)

// CreatedDateLayout renders timestamps as DD.MM.YYYY, HH:MM:SS.
const CreatedDateLayout = "02.01.2006, 15:04:05"

// Memory is a named, located and described event recorded by a user.
// UserID and CreatedAt never change after insert.
type Memory struct {
	ID          uint      `json:"id"          gorm:"primaryKey"`
	UserID      uint      `json:"user"        gorm:"not null;uniqueIndex:memories_user_name_key;uniqueIndex:memories_user_location_key"`
	Name        string    `json:"name"        gorm:"size:100;not null;uniqueIndex:memories_user_name_key"`
	Location    string    `json:"location"    gorm:"size:100;not null;uniqueIndex:memories_user_location_key"`
	Description string    `json:"description" gorm:"size:250;not null;default:''"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null;autoCreateTime"`
}

func (Memory) TableName() string { return "memories" }

func (m *Memory) String() string {
	return fmt.Sprintf("'%s' memory of user #%d", m.Name, m.UserID)
}

// Summary is the listing view of a Memory.
type Summary struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	CreatedDate string `json:"created_date"`
}

// Summary reduces the memory to its listing view. The timestamp is rendered in UTC.
func (m *Memory) Summary() Summary {
	return Summary{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Location:    m.Location,
		CreatedDate: m.CreatedAt.UTC().Format(CreatedDateLayout),
	}
}

// ConstraintError reports a violated Memory invariant.
type ConstraintError struct {
	Field   string
	Code    string
	Message string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the column-level invariants of the memory: owner, required
// fields, length bounds and the location grammar. Uniqueness is enforced by
// the store.
func (m *Memory) Validate() error {
	var errs []error
	if m.UserID == 0 {
		errs = append(errs, &ConstraintError{Field: "user", Code: "required", Message: "memory has no owner"})
	}
	errs = append(errs, checkText("name", m.Name, true, MaxNameLength)...)
	errs = append(errs, checkText("location", m.Location, true, MaxLocationLength)...)
	if strings.TrimSpace(m.Location) != "" {
		if err := ValidateLocation(m.Location); err != nil {
			errs = append(errs, &ConstraintError{Field: "location", Code: "invalid", Message: err.Error()})
		}
	}
	errs = append(errs, checkText("description", m.Description, false, MaxDescriptionLength)...)
	return errors.Join(errs...)
}

func checkText(field, value string, required bool, maxLen int) []error {
	var errs []error
	if required && strings.TrimSpace(value) == "" {
		errs = append(errs, &ConstraintError{Field: field, Code: "required", Message: "value is required"})
	}
	if n := utf8.RuneCountInString(value); n > maxLen {
		errs = append(errs, &ConstraintError{
			Field:   field,
			Code:    "max_length",
			Message: fmt.Sprintf("value has %d characters, at most %d allowed", n, maxLen),
		})
	}
	return errs
}

// BeforeSave rejects writes that would break the memory invariants,
// whichever code path issued them.
func (m *Memory) BeforeSave(tx *gorm.DB) error {
	return m.Validate()
}
