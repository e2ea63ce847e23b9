package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEntry("current")
	m.RecordEntry("current")
	m.RecordEntry("delete")
	m.RecordRecord("SpellName", OutcomeDecoded)
	m.RecordRecord("Unknown", OutcomeRaw)
	m.RecordDrift("padding")
	m.RecordDigest("new")
	m.RecordRun("dbcache", true, 25*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.entriesTotal.WithLabelValues("current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entriesTotal.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("SpellName", OutcomeDecoded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.driftTotal.WithLabelValues("padding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.digestsTotal.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("dbcache", statusSuccess)))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// registering twice on distinct registries must not panic
	a := NewMetrics(nil)
	b := NewMetrics(nil)
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestMetrics_WriteFile(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordRecord("SpellName", OutcomeFailed)
	m.RecordRun("wdb", false, time.Second)

	path := filepath.Join(t.TempDir(), "out", "dbcache.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `dbcache_records_total{outcome="failed",table="SpellName"} 1`)
	assert.Contains(t, text, `dbcache_runs_total{source="wdb",status="error"} 1`)
	assert.Contains(t, text, "# TYPE dbcache_decode_duration_seconds histogram")
}
