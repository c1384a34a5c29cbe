package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/memory-journal/internal/registry/migrate"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := open(cfg.DBURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
			sqlDB.SetMaxOpenConns(1)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(1)
			}
			return gormstore.New(db, UniqueViolationFields), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(WithPragmas(dsn)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

// WithPragmas appends the connection options the store relies on
// (foreign keys, busy timeout) unless the DSN already sets them.
func WithPragmas(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	opts := []string{}
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk=") {
		opts = append(opts, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		opts = append(opts, "_busy_timeout=5000")
	}
	if len(opts) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(opts, "&")
}

// UniqueViolationFields maps a sqlite UNIQUE constraint failure on the
// memories table to the fields it protects.
func UniqueViolationFields(err error) []string {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	return gormstore.FieldsForConstraint(sqliteErr.Error())
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DatastoreType != "sqlite" {
		return nil
	}
	if !cfg.DatastoreMigrateAtStart && !registrymigrate.Forced(ctx) {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: failed to open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}
