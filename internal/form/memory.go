// Package form binds untrusted memory submissions to validated model.Memory
// candidates and reports every failure per field.
package form

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/go-playground/validator/v10"
)

// Input is a raw memory submission. Values are trimmed; missing keys are empty.
type Input struct {
	User        string `json:"user"        form:"user"`
	Name        string `json:"name"        form:"name"`
	Location    string `json:"location"    form:"location"`
	Description string `json:"description" form:"description"`
}

// InputFromValues reads a submission from posted form values.
func InputFromValues(values url.Values) Input {
	return Input{
		User:        strings.TrimSpace(values.Get("user")),
		Name:        strings.TrimSpace(values.Get("name")),
		Location:    strings.TrimSpace(values.Get("location")),
		Description: strings.TrimSpace(values.Get("description")),
	}
}

// InputFromMemory prefills a form from an existing memory.
func InputFromMemory(m *model.Memory) Input {
	return Input{
		User:        strconv.FormatUint(uint64(m.UserID), 10),
		Name:        m.Name,
		Location:    m.Location,
		Description: m.Description,
	}
}

// Store is the part of the memory store the binder reads.
type Store interface {
	GetUser(ctx context.Context, userID uint) (*model.User, error)
	FindMemoryConflicts(ctx context.Context, ownerID uint, name, location string, excludeID uint) (registrystore.Conflicts, error)
}

type rule struct {
	tag  string
	code string
}

type field struct {
	name     string
	required bool
	maxLen   int
	rules    []rule
	value    func(Input) string
}

var memoryFields = []field{
	{
		name:     "name",
		required: true,
		maxLen:   model.MaxNameLength,
		rules:    []rule{{tag: "max", code: CodeMaxLength}},
		value:    func(in Input) string { return in.Name },
	},
	{
		name:     "location",
		required: true,
		maxLen:   model.MaxLocationLength,
		rules: []rule{
			{tag: "max", code: CodeMaxLength},
			{tag: "location", code: CodeInvalid},
		},
		value: func(in Input) string { return in.Location },
	},
	{
		name:   "description",
		maxLen: model.MaxDescriptionLength,
		rules:  []rule{{tag: "max", code: CodeMaxLength}},
		value:  func(in Input) string { return in.Description },
	},
}

// Binder validates memory submissions.
type Binder struct {
	store    Store
	validate *validator.Validate
}

// NewBinder returns a Binder that resolves owners and uniqueness through store.
func NewBinder(store Store) *Binder {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		return model.ValidateLocation(fl.Field().String()) == nil
	})
	return &Binder{store: store, validate: v}
}

// Bind validates in for callerID. existing is the memory being edited, or nil
// when creating. On success the returned candidate carries the new values and,
// when editing, the existing ID, owner and creation time. Invalid input is
// reported as Errors; any other error is an infrastructure failure.
func (b *Binder) Bind(ctx context.Context, callerID uint, in Input, existing *model.Memory) (*model.Memory, error) {
	errs := Errors{}

	ownerID, err := b.resolveOwner(ctx, callerID, in.User, existing, errs)
	if err != nil {
		return nil, err
	}

	for _, f := range memoryFields {
		value := f.value(in)
		if value == "" {
			if f.required {
				errs.Add(f.name, CodeRequired, requiredMessage())
			}
			continue
		}
		for _, r := range f.rules {
			tag := r.tag
			if tag == "max" {
				tag = "max=" + strconv.Itoa(f.maxLen)
			}
			if b.validate.Var(value, tag) == nil {
				continue
			}
			switch r.code {
			case CodeMaxLength:
				errs.Add(f.name, r.code, maxLengthMessage(f.maxLen, utf8.RuneCountInString(value)))
			case CodeInvalid:
				errs.Add(f.name, r.code, (&model.InvalidLocationError{Location: value}).Error())
			}
		}
	}

	if ownerID != 0 {
		name, location := in.Name, in.Location
		if errs.Has("name") {
			name = ""
		}
		if errs.Has("location") {
			location = ""
		}
		if name != "" || location != "" {
			var excludeID uint
			if existing != nil {
				excludeID = existing.ID
			}
			conflicts, err := b.store.FindMemoryConflicts(ctx, ownerID, name, location, excludeID)
			if err != nil {
				return nil, err
			}
			for _, f := range conflicts.Fields() {
				errs.Add(f, CodeUniqueTogether, uniqueTogetherMessage(f))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	candidate := &model.Memory{
		UserID:      ownerID,
		Name:        in.Name,
		Location:    in.Location,
		Description: in.Description,
	}
	if existing != nil {
		candidate.ID = existing.ID
		candidate.CreatedAt = existing.CreatedAt
	}
	return candidate, nil
}

// resolveOwner checks the user field. The owner must be an existing user and
// must be the caller; an edit must also keep the current owner.
func (b *Binder) resolveOwner(ctx context.Context, callerID uint, raw string, existing *model.Memory, errs Errors) (uint, error) {
	if raw == "" {
		errs.Add("user", CodeRequired, requiredMessage())
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		errs.Add("user", CodeInvalidChoice, invalidChoiceMessage())
		return 0, nil
	}
	ownerID := uint(id)
	if _, err := b.store.GetUser(ctx, ownerID); err != nil {
		var nf *registrystore.NotFoundError
		if !errors.As(err, &nf) {
			return 0, err
		}
		errs.Add("user", CodeInvalidChoice, invalidChoiceMessage())
		return 0, nil
	}
	if ownerID != callerID || (existing != nil && existing.UserID != ownerID) {
		errs.Add("user", CodeInvalidChoice, invalidChoiceMessage())
		return 0, nil
	}
	return ownerID, nil
}
