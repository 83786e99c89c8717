package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedFetchTotal counts fetch attempts per source by result (ok, error, open).
	FeedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newspulse_feed_fetch_total",
			Help: "Feed fetches by source and result",
		},
		[]string{"source", "result"},
	)

	// FeedFetchDuration tracks fetch latency per source.
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newspulse_feed_fetch_duration_seconds",
			Help:    "Duration of feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ArticlesIngested counts articles accepted into raw caches.
	ArticlesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newspulse_articles_ingested_total",
			Help: "Articles accepted from feeds",
		},
		[]string{"source"},
	)

	// ClusterPassDuration tracks how long one clustering pass takes.
	ClusterPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newspulse_cluster_pass_duration_seconds",
			Help:    "Duration of a clustering pass in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// PoolEntities reports the size of the last built pool per scope.
	PoolEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newspulse_pool_entities",
			Help: "Entities in the last clustered pool",
		},
		[]string{"scope", "kind"},
	)

	// CacheLookups counts cache reads by slot kind and outcome (hit, miss, stale, corrupt).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newspulse_cache_lookups_total",
			Help: "Cache lookups by slot kind and outcome",
		},
		[]string{"slot", "outcome"},
	)

	// MasterRebuilds counts master pool rebuilds by reason.
	MasterRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newspulse_master_rebuilds_total",
			Help: "Master pool rebuilds by reason",
		},
		[]string{"reason"},
	)

	// Summaries counts summary requests by outcome.
	Summaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newspulse_summaries_total",
			Help: "Article summary requests by outcome",
		},
		[]string{"outcome"},
	)
)

// Metrics is the health snapshot served on /health.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	RefreshRuns      int64
	FailedFetches    int64
	DigestsSent      int64
	ArticlesInMaster int
	ClustersInMaster int

	// Timings
	LastRefreshTime    time.Duration
	AverageRefreshTime time.Duration
	TotalRefreshTime   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementFailedFetches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedFetches++
}

func (m *Metrics) IncrementDigestsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DigestsSent++
}

// RecordRefresh stores the duration of a completed refresh.
func (m *Metrics) RecordRefresh(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefreshRuns++
	m.LastRefreshTime = duration
	m.TotalRefreshTime += duration
	m.AverageRefreshTime = m.TotalRefreshTime / time.Duration(m.RefreshRuns)
}

// SetMasterSize records the composition of the latest master pool.
func (m *Metrics) SetMasterSize(articles, clusters int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesInMaster = articles
	m.ClustersInMaster = clusters
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"refresh_runs":            m.RefreshRuns,
		"failed_fetches":          m.FailedFetches,
		"digests_sent":            m.DigestsSent,
		"articles_in_master":      m.ArticlesInMaster,
		"clusters_in_master":      m.ClustersInMaster,
		"last_refresh_time_ms":    m.LastRefreshTime.Milliseconds(),
		"average_refresh_time_ms": m.AverageRefreshTime.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
