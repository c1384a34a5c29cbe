package metrics

import (
	"context"
	"time"

	"github.com/chirino/memory-journal/internal/model"
	"github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
)

// Wrap returns a MemoryStore that records StoreLatency for every operation.
func Wrap(inner store.MemoryStore) store.MemoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MemoryStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) LoginSocialAccount(ctx context.Context, login store.SocialLogin) (*model.User, error) {
	defer observe("login_social_account", time.Now())
	return m.inner.LoginSocialAccount(ctx, login)
}

func (m *metricsStore) ListSocialAccounts(ctx context.Context, userID uint) ([]model.SocialAccount, error) {
	defer observe("list_social_accounts", time.Now())
	return m.inner.ListSocialAccounts(ctx, userID)
}

func (m *metricsStore) ListMemories(ctx context.Context, ownerID uint) ([]model.Memory, error) {
	defer observe("list_memories", time.Now())
	return m.inner.ListMemories(ctx, ownerID)
}

func (m *metricsStore) GetMemory(ctx context.Context, ownerID uint, memoryID uint) (*model.Memory, error) {
	defer observe("get_memory", time.Now())
	return m.inner.GetMemory(ctx, ownerID, memoryID)
}

func (m *metricsStore) FindMemoryConflicts(ctx context.Context, ownerID uint, name, location string, excludeID uint) (store.Conflicts, error) {
	defer observe("find_memory_conflicts", time.Now())
	return m.inner.FindMemoryConflicts(ctx, ownerID, name, location, excludeID)
}

func (m *metricsStore) CreateMemory(ctx context.Context, ownerID uint, mem *model.Memory) error {
	defer observe("create_memory", time.Now())
	return m.inner.CreateMemory(ctx, ownerID, mem)
}

func (m *metricsStore) UpdateMemory(ctx context.Context, ownerID uint, mem *model.Memory) error {
	defer observe("update_memory", time.Now())
	return m.inner.UpdateMemory(ctx, ownerID, mem)
}

func (m *metricsStore) DeleteMemory(ctx context.Context, ownerID uint, memoryID uint) error {
	defer observe("delete_memory", time.Now())
	return m.inner.DeleteMemory(ctx, ownerID, memoryID)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
