package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := NewManager(db, 10, 50*time.Millisecond)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRecordAndQuery(t *testing.T) {
	m := newTestManager(t)

	m.Record("discovery_cpu_percent", 42.5)
	m.RecordLabeled("query_duration_ms", 120, map[string]string{"category": "products"})

	require.Eventually(t, func() bool {
		got, err := m.Query("discovery_cpu_percent", time.Time{}, 10)
		return err == nil && len(got) == 1
	}, time.Second, 10*time.Millisecond, "interval flush should persist the datapoint")

	got, err := m.Query("query_duration_ms", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 120.0, got[0].Value, 1e-9)
	assert.Equal(t, "products", got[0].Labels["category"])
}

func TestBufferFullTriggersFlush(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := NewManager(db, 3, time.Hour) // interval never fires in this test
	t.Cleanup(func() { m.Close() })

	m.Record("pauses", 1)
	m.Record("pauses", 1)
	m.Record("pauses", 1)

	got, err := m.Query("pauses", time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQuerySinceFilters(t *testing.T) {
	m := newTestManager(t)
	m.Record("emergency_stops", 1)

	require.Eventually(t, func() bool {
		got, _ := m.Query("emergency_stops", time.Time{}, 10)
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	got, err := m.Query("emergency_stops", time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got, "future since bound should exclude everything")
}

func TestCleanupRemovesOldRows(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := NewManager(db, 1, time.Hour)
	t.Cleanup(func() { m.Close() })

	// Insert one old row directly; Record always stamps now.
	_, err = db.Exec("INSERT INTO metrics (metric_name, timestamp, value) VALUES (?, ?, ?)",
		"discovery_cpu_percent", time.Now().Add(-48*time.Hour).Unix(), 10.0)
	require.NoError(t, err)
	m.Record("discovery_cpu_percent", 20)

	removed, err := m.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := m.Query("discovery_cpu_percent", time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
