// Package gormstore implements registry/store.MemoryStore on top of GORM.
// The postgres and sqlite plugins differ only in dialector, schema and the
// way they recognise unique-constraint violations.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/model"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"gorm.io/gorm"
)

// Unique constraint names shared by both schemas.
const (
	ConstraintUserName     = "memories_user_name_key"
	ConstraintUserLocation = "memories_user_location_key"
)

// UniqueViolation inspects a write error and returns the memory fields whose
// unique constraint was violated, or nil when err is not a unique violation.
type UniqueViolation func(err error) []string

// Store implements MemoryStore using GORM.
type Store struct {
	db       *gorm.DB
	violated UniqueViolation
}

// New wraps an open GORM handle.
func New(db *gorm.DB, violated UniqueViolation) *Store {
	return &Store{db: db, violated: violated}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: strconv.FormatUint(uint64(userID), 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Store) LoginSocialAccount(ctx context.Context, login registrystore.SocialLogin) (*model.User, error) {
	if login.Provider == "" || login.UID == "" {
		return nil, fmt.Errorf("social login requires provider and uid")
	}
	var user model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var account model.SocialAccount
		err := tx.Where("provider = ? AND uid = ?", login.Provider, login.UID).Take(&account).Error
		switch {
		case err == nil:
			account.ExtraData = extraData(login)
			account.LastLogin = now
			if err := tx.Model(&account).Select("extra_data", "last_login").Updates(&account).Error; err != nil {
				return fmt.Errorf("update social account: %w", err)
			}
			return tx.Where("id = ?", account.UserID).Take(&user).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find social account: %w", err)
		}

		user = model.User{
			Username:  login.Provider + ":" + login.UID,
			Email:     login.Email,
			CreatedAt: now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		account = model.SocialAccount{
			UserID:    user.ID,
			Provider:  login.Provider,
			UID:       login.UID,
			ExtraData: extraData(login),
			LastLogin: now,
			CreatedAt: now,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("create social account: %w", err)
		}
		log.Info("Registered user", "user", user.ID, "provider", login.Provider)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func extraData(login registrystore.SocialLogin) map[string]interface{} {
	if login.ExtraData == nil {
		return map[string]interface{}{}
	}
	return login.ExtraData
}

func (s *Store) ListSocialAccounts(ctx context.Context, userID uint) ([]model.SocialAccount, error) {
	var accounts []model.SocialAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list social accounts: %w", err)
	}
	return accounts, nil
}

// --- Memories ---

func (s *Store) ListMemories(ctx context.Context, ownerID uint) ([]model.Memory, error) {
	var memories []model.Memory
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&memories).Error
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return memories, nil
}

func (s *Store) GetMemory(ctx context.Context, ownerID uint, memoryID uint) (*model.Memory, error) {
	return getMemory(s.db.WithContext(ctx), ownerID, memoryID)
}

func getMemory(tx *gorm.DB, ownerID uint, memoryID uint) (*model.Memory, error) {
	var m model.Memory
	err := tx.Where("id = ? AND user_id = ?", memoryID, ownerID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memoryNotFound(memoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return &m, nil
}

func memoryNotFound(memoryID uint) error {
	return &registrystore.NotFoundError{Resource: "memory", ID: strconv.FormatUint(uint64(memoryID), 10)}
}

func (s *Store) FindMemoryConflicts(ctx context.Context, ownerID uint, name, location string, excludeID uint) (registrystore.Conflicts, error) {
	return findConflicts(s.db.WithContext(ctx), ownerID, name, location, excludeID)
}

func findConflicts(tx *gorm.DB, ownerID uint, name, location string, excludeID uint) (registrystore.Conflicts, error) {
	var taken []model.Memory
	q := tx.Select("id", "name", "location").
		Where("user_id = ?", ownerID).
		Where("name = ? OR location = ?", name, location)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&taken).Error; err != nil {
		return registrystore.Conflicts{}, fmt.Errorf("check memory uniqueness: %w", err)
	}
	var c registrystore.Conflicts
	for _, m := range taken {
		if name != "" && m.Name == name {
			c.Name = true
		}
		if location != "" && m.Location == location {
			c.Location = true
		}
	}
	return c, nil
}

func (s *Store) CreateMemory(ctx context.Context, ownerID uint, m *model.Memory) error {
	m.ID = 0
	m.UserID = ownerID
	m.CreatedAt = time.Time{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, ownerID, m, 0); err != nil {
			return err
		}
		return tx.Create(m).Error
	})
	return s.translate(err)
}

func (s *Store) UpdateMemory(ctx context.Context, ownerID uint, m *model.Memory) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getMemory(tx, ownerID, m.ID)
		if err != nil {
			return err
		}
		m.UserID = current.UserID
		m.CreatedAt = current.CreatedAt
		if err := s.checkUnique(tx, ownerID, m, m.ID); err != nil {
			return err
		}
		res := tx.Model(m).
			Where("user_id = ?", ownerID).
			Select("name", "location", "description").
			Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return memoryNotFound(m.ID)
		}
		return nil
	})
	return s.translate(err)
}

func (s *Store) DeleteMemory(ctx context.Context, ownerID uint, memoryID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", memoryID, ownerID).
		Delete(&model.Memory{})
	if res.Error != nil {
		return fmt.Errorf("delete memory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return memoryNotFound(memoryID)
	}
	return nil
}

// checkUnique re-runs the uniqueness check inside the write transaction.
// The database constraints still back it up when two writers race.
func (s *Store) checkUnique(tx *gorm.DB, ownerID uint, m *model.Memory, excludeID uint) error {
	c, err := findConflicts(tx, ownerID, m.Name, m.Location, excludeID)
	if err != nil {
		return err
	}
	if c.Any() {
		return &registrystore.ConflictError{Code: "unique_together", Fields: c.Fields()}
	}
	return nil
}

func (s *Store) translate(err error) error {
	if err == nil {
		return nil
	}
	var nf *registrystore.NotFoundError
	var ce *registrystore.ConflictError
	var mc *model.ConstraintError
	if errors.As(err, &nf) || errors.As(err, &ce) || errors.As(err, &mc) {
		return err
	}
	if s.violated != nil {
		if fields := s.violated(err); len(fields) > 0 {
			return &registrystore.ConflictError{Code: "unique_together", Fields: fields}
		}
	}
	return fmt.Errorf("write memory: %w", err)
}

// FieldsForConstraint maps a constraint name (or a message mentioning it or
// its columns) to the memory fields it protects.
func FieldsForConstraint(text string) []string {
	switch {
	case strings.Contains(text, ConstraintUserName), strings.Contains(text, "memories.name"):
		return []string{"name"}
	case strings.Contains(text, ConstraintUserLocation), strings.Contains(text, "memories.location"):
		return []string{"location"}
	default:
		return nil
	}
}
