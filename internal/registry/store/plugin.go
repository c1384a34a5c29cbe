package store

import (
	"context"
	"fmt"

	"github.com/chirino/memory-journal/internal/model"
)

// SocialLogin is the identity returned by a provider after a successful sign-in.
type SocialLogin struct {
	Provider  string
	UID       string
	Email     string
	ExtraData map[string]interface{}
}

// Conflicts reports which of an owner's unique memory columns are already taken.
type Conflicts struct {
	Name     bool
	Location bool
}

// Any reports whether any column is taken.
func (c Conflicts) Any() bool { return c.Name || c.Location }

// Fields lists the taken columns in form order.
func (c Conflicts) Fields() []string {
	var fields []string
	if c.Name {
		fields = append(fields, "name")
	}
	if c.Location {
		fields = append(fields, "location")
	}
	return fields
}

// MemoryStore persists users, their linked social accounts and their memories.
// Every memory operation takes the owner explicitly; a memory owned by someone
// else is reported as *NotFoundError.
type MemoryStore interface {
	GetUser(ctx context.Context, userID uint) (*model.User, error)
	// LoginSocialAccount finds or creates the user linked to the provider account
	// and refreshes the account's ExtraData.
	LoginSocialAccount(ctx context.Context, login SocialLogin) (*model.User, error)
	// ListSocialAccounts returns the user's linked accounts in ascending id order.
	ListSocialAccounts(ctx context.Context, userID uint) ([]model.SocialAccount, error)

	// ListMemories returns the owner's memories, newest first.
	ListMemories(ctx context.Context, ownerID uint) ([]model.Memory, error)
	GetMemory(ctx context.Context, ownerID uint, memoryID uint) (*model.Memory, error)
	// FindMemoryConflicts checks name and location against the owner's other
	// memories. excludeID (0 for none) skips the memory being edited.
	FindMemoryConflicts(ctx context.Context, ownerID uint, name, location string, excludeID uint) (Conflicts, error)
	// CreateMemory inserts m for ownerID, filling in ID and CreatedAt.
	CreateMemory(ctx context.Context, ownerID uint, m *model.Memory) error
	// UpdateMemory writes name, location and description of m.ID in place.
	UpdateMemory(ctx context.Context, ownerID uint, m *model.Memory) error
	DeleteMemory(ctx context.Context, ownerID uint, memoryID uint) error

	Close() error
}

// Loader creates a MemoryStore from config in context.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
