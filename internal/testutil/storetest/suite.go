// Package storetest is the behavioural contract every MemoryStore plugin must meet.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty, migrated store.
type Factory func(t *testing.T) registrystore.MemoryStore

func login(t *testing.T, store registrystore.MemoryStore, provider, uid string, extra map[string]interface{}) *model.User {
	t.Helper()
	user, err := store.LoginSocialAccount(context.Background(), registrystore.SocialLogin{
		Provider:  provider,
		UID:       uid,
		Email:     uid + "@example.com",
		ExtraData: extra,
	})
	require.NoError(t, err)
	return user
}

func newMemory(name, location string) *model.Memory {
	return &model.Memory{Name: name, Location: location, Description: "about " + name}
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func requireConflict(t *testing.T, err error, fields ...string) {
	t.Helper()
	var ce *registrystore.ConflictError
	require.True(t, errors.As(err, &ce), "expected ConflictError, got %v", err)
	assert.Equal(t, fields, ce.Fields)
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("SocialLoginCreatesThenReusesUser", func(t *testing.T) {
		store := newStore(t)
		first := login(t, store, "vk", "42", map[string]interface{}{"first_name": "Ivan"})
		again := login(t, store, "vk", "42", map[string]interface{}{"first_name": "Ivan", "last_name": "Petrov"})
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "vk:42", again.Username)

		accounts, err := store.ListSocialAccounts(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, "Petrov", accounts[0].ExtraData["last_name"])

		other := login(t, store, "google", "42", nil)
		assert.NotEqual(t, first.ID, other.ID)

		got, err := store.GetUser(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "42@example.com", got.Email)

		_, err = store.GetUser(ctx, 999999)
		requireNotFound(t, err)
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)

		m := newMemory("Lake", "[56.838095,60.603567]")
		require.NoError(t, store.CreateMemory(ctx, owner.ID, m))
		assert.NotZero(t, m.ID)
		assert.Equal(t, owner.ID, m.UserID)
		assert.False(t, m.CreatedAt.IsZero())

		got, err := store.GetMemory(ctx, owner.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lake", got.Name)
		assert.Equal(t, "about Lake", got.Description)
		assert.WithinDuration(t, m.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("OwnerScoping", func(t *testing.T) {
		store := newStore(t)
		alice := login(t, store, "google", "alice", nil)
		bob := login(t, store, "google", "bob", nil)

		m := newMemory("Secret", "[1.0,2.0]")
		require.NoError(t, store.CreateMemory(ctx, alice.ID, m))

		_, err := store.GetMemory(ctx, bob.ID, m.ID)
		requireNotFound(t, err)

		edit := *m
		edit.Name = "Stolen"
		requireNotFound(t, store.UpdateMemory(ctx, bob.ID, &edit))
		requireNotFound(t, store.DeleteMemory(ctx, bob.ID, m.ID))

		got, err := store.GetMemory(ctx, alice.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "Secret", got.Name)

		list, err := store.ListMemories(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		// The same name and location are free for another owner.
		require.NoError(t, store.CreateMemory(ctx, bob.ID, newMemory("Secret", "[1.0,2.0]")))
	})

	t.Run("UniquenessPerOwner", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)
		require.NoError(t, store.CreateMemory(ctx, owner.ID, newMemory("Lake", "[1.0,1.0]")))

		requireConflict(t, store.CreateMemory(ctx, owner.ID, newMemory("Lake", "[2.0,2.0]")), "name")
		requireConflict(t, store.CreateMemory(ctx, owner.ID, newMemory("River", "[1.0,1.0]")), "location")
		requireConflict(t, store.CreateMemory(ctx, owner.ID, newMemory("Lake", "[1.0,1.0]")), "name", "location")

		c, err := store.FindMemoryConflicts(ctx, owner.ID, "Lake", "[3.0,3.0]", 0)
		require.NoError(t, err)
		assert.Equal(t, registrystore.Conflicts{Name: true}, c)

		list, err := store.ListMemories(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("UpdateChangesOnlyMutableFields", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)
		m := newMemory("Lake", "[1.0,1.0]")
		require.NoError(t, store.CreateMemory(ctx, owner.ID, m))
		before, err := store.GetMemory(ctx, owner.ID, m.ID)
		require.NoError(t, err)

		edit := &model.Memory{
			ID:          m.ID,
			UserID:      owner.ID + 100,
			Name:        "Pond",
			Location:    "[1.0,1.0]",
			Description: "renamed",
			CreatedAt:   time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.UpdateMemory(ctx, owner.ID, edit))

		after, err := store.GetMemory(ctx, owner.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "Pond", after.Name)
		assert.Equal(t, "renamed", after.Description)
		assert.Equal(t, owner.ID, after.UserID)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))

		// Editing a memory into a sibling's name conflicts, keeping its own does not.
		require.NoError(t, store.CreateMemory(ctx, owner.ID, newMemory("River", "[2.0,2.0]")))
		after.Name = "River"
		requireConflict(t, store.UpdateMemory(ctx, owner.ID, after), "name")
		after.Name = "Pond"
		require.NoError(t, store.UpdateMemory(ctx, owner.ID, after))

		requireNotFound(t, store.UpdateMemory(ctx, owner.ID, &model.Memory{ID: 999999, Name: "x", Location: "[9.0,9.0]"}))
	})

	t.Run("InvalidMemoryIsRejected", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)

		err := store.CreateMemory(ctx, owner.ID, newMemory("Lake", "Moscow"))
		var ce *model.ConstraintError
		require.True(t, errors.As(err, &ce), "expected ConstraintError, got %v", err)
		assert.Equal(t, "location", ce.Field)

		list, err := store.ListMemories(ctx, owner.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)
		for i := 1; i <= 3; i++ {
			require.NoError(t, store.CreateMemory(ctx, owner.ID, newMemory(fmt.Sprintf("m%d", i), fmt.Sprintf("[%d.0,0.0]", i))))
			time.Sleep(10 * time.Millisecond)
		}
		list, err := store.ListMemories(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"m3", "m2", "m1"}, []string{list[0].Name, list[1].Name, list[2].Name})
	})

	t.Run("DeleteRemovesExactlyOne", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)
		keep := newMemory("Keep", "[1.0,1.0]")
		drop := newMemory("Drop", "[2.0,2.0]")
		require.NoError(t, store.CreateMemory(ctx, owner.ID, keep))
		require.NoError(t, store.CreateMemory(ctx, owner.ID, drop))

		require.NoError(t, store.DeleteMemory(ctx, owner.ID, drop.ID))
		requireNotFound(t, store.DeleteMemory(ctx, owner.ID, drop.ID))

		list, err := store.ListMemories(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, keep.ID, list[0].ID)
	})

	t.Run("ConcurrentDuplicateCreates", func(t *testing.T) {
		store := newStore(t)
		owner := login(t, store, "google", "owner", nil)

		const writers = 5
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.CreateMemory(ctx, owner.ID, newMemory("Same", fmt.Sprintf("[%d.0,1.0]", i)))
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			var ce *registrystore.ConflictError
			assert.True(t, errors.As(err, &ce), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, created)
	})
}
