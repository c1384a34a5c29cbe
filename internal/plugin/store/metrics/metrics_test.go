package metrics_test

import (
	"testing"

	"github.com/chirino/memory-journal/internal/plugin/store/metrics"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/testutil/storetest"
	"github.com/chirino/memory-journal/internal/testutil/testdb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWrappedStoreKeepsContract(t *testing.T) {
	security.InitMetrics(nil)

	storetest.Run(t, func(t *testing.T) registrystore.MemoryStore {
		store, _ := testdb.NewSQLiteStore(t)
		return metrics.Wrap(store)
	})

	assert.Positive(t, testutil.CollectAndCount(security.StoreLatency, "memory_journal_store_latency_seconds"))
}
