package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRefreshAverages(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.RecordRefresh(100 * time.Millisecond)
	m.RecordRefresh(300 * time.Millisecond)

	stats := m.GetStats()
	assert.EqualValues(t, 2, stats["refresh_runs"])
	assert.EqualValues(t, 300, stats["last_refresh_time_ms"])
	assert.EqualValues(t, 200, stats["average_refresh_time_ms"])
}

func TestHealthFlips(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.SetError("all sources failed")
	assert.False(t, m.Healthy())
	assert.Equal(t, "all sources failed", m.GetStats()["last_error"])

	m.SetLastRun()
	assert.True(t, m.Healthy())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("raw", "hit"))
	CacheLookups.WithLabelValues("raw", "hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CacheLookups.WithLabelValues("raw", "hit")))
}
