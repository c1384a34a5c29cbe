package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("JOURNAL_POD", "pod-1")

	labels, err := ParseMetricsLabels("service=memory-journal,pod=${JOURNAL_POD}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "memory-journal", "pod": "pod-1"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	assert.Error(t, err)
	_, err = ParseMetricsLabels("1bad=x")
	assert.Error(t, err)
}

func TestRecordMemoryWriteBeforeInit(t *testing.T) {
	if MemoryWritesTotal != nil {
		t.Skip("metrics already initialized")
	}
	assert.NotPanics(t, func() { RecordMemoryWrite("create", "ok") })
}
