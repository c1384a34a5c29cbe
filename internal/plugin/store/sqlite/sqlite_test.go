package sqlite_test

import (
	"testing"

	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/plugin/store/sqlite"
	"github.com/chirino/memory-journal/internal/testutil/storetest"
	"github.com/chirino/memory-journal/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) registrystore.MemoryStore {
		store, _ := testdb.NewSQLiteStore(t)
		return store
	})
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "file:journal.db?_foreign_keys=on&_busy_timeout=5000", sqlite.WithPragmas("journal.db"))
	assert.Equal(t, "file:journal.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000", sqlite.WithPragmas("file:journal.db?mode=rwc"))
	assert.Equal(t, "file:x.db?_fk=1&_busy_timeout=100", sqlite.WithPragmas("file:x.db?_fk=1&_busy_timeout=100"))
}

func TestUniqueViolationFieldsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, sqlite.UniqueViolationFields(assert.AnError))
}
