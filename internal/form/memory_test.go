package form

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validLocation      = "[55.7558,37.6173]"
	otherValidLocation = "[40.7128,74.0060]"
)

type fakeStore struct {
	users    map[uint]bool
	memories []model.Memory
	err      error
}

func (s *fakeStore) GetUser(_ context.Context, userID uint) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.users[userID] {
		return nil, &registrystore.NotFoundError{Resource: "user"}
	}
	return &model.User{ID: userID}, nil
}

func (s *fakeStore) FindMemoryConflicts(_ context.Context, ownerID uint, name, location string, excludeID uint) (registrystore.Conflicts, error) {
	var c registrystore.Conflicts
	for _, m := range s.memories {
		if m.UserID != ownerID || m.ID == excludeID {
			continue
		}
		if name != "" && m.Name == name {
			c.Name = true
		}
		if location != "" && m.Location == location {
			c.Location = true
		}
	}
	return c, nil
}

func newFixture() (*Binder, *fakeStore) {
	store := &fakeStore{
		users: map[uint]bool{1: true, 2: true},
		memories: []model.Memory{
			{ID: 10, UserID: 1, Name: "taken", Location: validLocation},
			{ID: 20, UserID: 2, Name: "foreign", Location: otherValidLocation},
		},
	}
	return NewBinder(store), store
}

func requireErrors(t *testing.T, err error) Errors {
	t.Helper()
	var errs Errors
	require.True(t, errors.As(err, &errs), "expected form errors, got %v", err)
	return errs
}

func TestBind_EmptySubmissionRequiresUserNameLocation(t *testing.T) {
	binder, _ := newFixture()

	_, err := binder.Bind(context.Background(), 1, InputFromValues(url.Values{}), nil)
	errs := requireErrors(t, err)

	require.Len(t, errs, 3)
	for _, field := range []string{"user", "name", "location"} {
		assert.Equal(t, []string{CodeRequired}, errs.Codes(field), field)
	}
}

func TestBind_ReportsEveryInvalidField(t *testing.T) {
	binder, _ := newFixture()

	_, err := binder.Bind(context.Background(), 1, Input{
		User:        "abc",
		Name:        strings.Repeat("*", 101),
		Location:    "Moscow",
		Description: strings.Repeat("*", 251),
	}, nil)
	errs := requireErrors(t, err)

	assert.Equal(t, []string{CodeInvalidChoice}, errs.Codes("user"))
	assert.Equal(t, []string{CodeMaxLength}, errs.Codes("name"))
	assert.Equal(t, []string{CodeMaxLength}, errs.Codes("description"))
	assert.Equal(t, []string{CodeInvalid}, errs.Codes("location"))
	assert.Equal(t, "Ensure this value has at most 100 characters (it has 101).", errs["name"][0].Message)
	assert.Equal(t, "Invalid location field: Moscow", errs["location"][0].Message)
}

func TestBind_LocationCanCarrySeveralCodes(t *testing.T) {
	binder, _ := newFixture()

	_, err := binder.Bind(context.Background(), 1, Input{
		User:     "1",
		Name:     "n",
		Location: strings.Repeat("x", 101),
	}, nil)
	errs := requireErrors(t, err)
	assert.Equal(t, []string{CodeMaxLength, CodeInvalid}, errs.Codes("location"))
}

func TestBind_UnknownOrForeignOwnerIsInvalidChoice(t *testing.T) {
	binder, _ := newFixture()
	for _, user := range []string{"0", "-1", "99", "2", "1.5"} {
		_, err := binder.Bind(context.Background(), 1, Input{User: user, Name: "n", Location: otherValidLocation}, nil)
		errs := requireErrors(t, err)
		assert.Equal(t, []string{CodeInvalidChoice}, errs.Codes("user"), user)
		assert.Len(t, errs, 1, user)
	}
}

func TestBind_DuplicateNameAndLocation(t *testing.T) {
	binder, _ := newFixture()

	_, err := binder.Bind(context.Background(), 1, Input{User: "1", Name: "taken", Location: validLocation}, nil)
	errs := requireErrors(t, err)
	assert.Equal(t, []string{CodeUniqueTogether}, errs.Codes("name"))
	assert.Equal(t, []string{CodeUniqueTogether}, errs.Codes("location"))
	assert.Equal(t, "Memory with this User and Name already exists.", errs["name"][0].Message)
}

func TestBind_UniquenessIsScopedToOwner(t *testing.T) {
	binder, _ := newFixture()

	m, err := binder.Bind(context.Background(), 1, Input{User: "1", Name: "foreign", Location: otherValidLocation}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), m.UserID)
	assert.Equal(t, "foreign", m.Name)
}

func TestBind_EditExcludesOwnRow(t *testing.T) {
	binder, store := newFixture()
	existing := store.memories[0]
	existing.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	m, err := binder.Bind(context.Background(), 1, Input{
		User:        "1",
		Name:        "taken",
		Location:    validLocation,
		Description: "now with text",
	}, &existing)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, m.ID)
	assert.Equal(t, existing.UserID, m.UserID)
	assert.Equal(t, existing.CreatedAt, m.CreatedAt)
	assert.Equal(t, "now with text", m.Description)
}

func TestBind_EditCannotChangeOwner(t *testing.T) {
	binder, store := newFixture()
	existing := store.memories[0]

	_, err := binder.Bind(context.Background(), 2, Input{User: "2", Name: "x", Location: "[1.0,1.0]"}, &existing)
	errs := requireErrors(t, err)
	assert.Equal(t, []string{CodeInvalidChoice}, errs.Codes("user"))
}

func TestBind_TrimsInput(t *testing.T) {
	binder, _ := newFixture()
	in := InputFromValues(url.Values{
		"user":     {" 1 "},
		"name":     {"  spaced  "},
		"location": {" [1.5,2.5] "},
	})

	m, err := binder.Bind(context.Background(), 1, in, nil)
	require.NoError(t, err)
	assert.Equal(t, "spaced", m.Name)
	assert.Equal(t, "[1.5,2.5]", m.Location)
	assert.Equal(t, "", m.Description)
}

func TestBind_StoreFailureIsNotAFormError(t *testing.T) {
	binder, store := newFixture()
	store.err = errors.New("connection refused")

	_, err := binder.Bind(context.Background(), 1, Input{User: "1", Name: "n", Location: validLocation}, nil)
	require.Error(t, err)
	var errs Errors
	assert.False(t, errors.As(err, &errs))
}

func TestErrorsJSON(t *testing.T) {
	errs := Errors{}
	errs.Add("name", CodeRequired, "This field is required.")

	var decoded map[string][]map[string]string
	require.NoError(t, json.Unmarshal([]byte(errs.JSON()), &decoded))
	assert.Equal(t, "required", decoded["name"][0]["code"])
	assert.Equal(t, "This field is required.", decoded["name"][0]["message"])
}

func TestFromWriteError(t *testing.T) {
	errs, ok := FromWriteError(&registrystore.ConflictError{Fields: []string{"location"}})
	require.True(t, ok)
	assert.Equal(t, []string{CodeUniqueTogether}, errs.Codes("location"))

	bad := model.Memory{UserID: 1, Name: "n", Location: "nowhere"}
	errs, ok = FromWriteError(bad.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{CodeInvalid}, errs.Codes("location"))

	_, ok = FromWriteError(errors.New("disk full"))
	assert.False(t, ok)
}
