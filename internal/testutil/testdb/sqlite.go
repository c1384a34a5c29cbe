// Package testdb opens throwaway stores for package tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/memory-journal/internal/registry/migrate"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
)

// Config returns a testing-mode config pointing at a fresh sqlite file.
func Config(tb testing.TB) *config.Config {
	tb.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(tb.TempDir(), "journal.db")
	return &cfg
}

// NewSQLiteStore migrates and opens a sqlite store that is closed on cleanup.
func NewSQLiteStore(tb testing.TB) (registrystore.MemoryStore, context.Context) {
	tb.Helper()
	_ = sqlite.ForceImport

	ctx := config.WithContext(context.Background(), Config(tb))
	if err := registrymigrate.RunAll(ctx); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	loader, err := registrystore.Select("sqlite")
	if err != nil {
		tb.Fatalf("select sqlite store: %v", err)
	}
	store, err := loader(ctx)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store, ctx
}

// NewUser registers a user through a google login with the given display name.
func NewUser(tb testing.TB, store registrystore.MemoryStore, uid, name string) uint {
	tb.Helper()
	user, err := store.LoginSocialAccount(context.Background(), registrystore.SocialLogin{
		Provider:  "google",
		UID:       uid,
		Email:     uid + "@example.com",
		ExtraData: map[string]interface{}{"name": name, "picture": "https://example.com/" + uid + ".png"},
	})
	if err != nil {
		tb.Fatalf("create user %s: %v", uid, err)
	}
	return user.ID
}
