// Package aggregate fetches every enabled source, merges their headlines into
// the master list and keeps the clustered master pool current.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/rss"
)

// Rebuild reasons, also used as metric labels.
const (
	ReasonForced  = "forced"
	ReasonRefresh = "source_refresh"
	ReasonMissing = "missing"
	ReasonStale   = "stale"
)

// Options tunes fetching and merging.
type Options struct {
	FetchTimeout    time.Duration
	Retry           retry.RetryConfig
	MasterCap       int
	MaxConcurrent   int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultOptions returns the shipped defaults.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:    10 * time.Second,
		Retry:           retry.RetryConfig{MaxAttempts: 2, Delay: time.Second, Backoff: true},
		MasterCap:       1000,
		BreakerFailures: 3,
		BreakerCooldown: 5 * time.Minute,
	}
}

// Report summarizes one refresh.
type Report struct {
	Results []FetchResult      `json:"results"`
	Rebuilt bool               `json:"rebuilt"`
	Reason  string             `json:"reason,omitempty"`
	Master  models.ClusterPool `json:"-"`
}

// Failed counts sources whose fetch failed.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Aggregator owns the refresh pipeline.
type Aggregator struct {
	fetcher  Fetcher
	cache    *cache.Manager
	builder  cache.Clusterer
	opts     Options
	breakers *breakers
}

// New wires an Aggregator. Zero option fields take DefaultOptions values.
func New(fetcher Fetcher, cm *cache.Manager, builder cache.Clusterer, opts Options) *Aggregator {
	d := DefaultOptions()
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = d.FetchTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = d.Retry
	}
	if opts.MasterCap <= 0 {
		opts.MasterCap = d.MasterCap
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = d.BreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = d.BreakerCooldown
	}
	return &Aggregator{
		fetcher:  fetcher,
		cache:    cm,
		builder:  builder,
		opts:     opts,
		breakers: newBreakers(opts.BreakerFailures, opts.BreakerCooldown),
	}
}

// Refresh fetches every enabled source concurrently and rebuilds the master
// pool when a source produced new items, when forced, or when no master
// exists yet. A failed source keeps its previous cache and never aborts the run.
func (a *Aggregator) Refresh(ctx context.Context, sources []rss.Source, force bool) (Report, error) {
	start := time.Now()
	enabled := enabledOnly(sources)
	results := make([]FetchResult, len(enabled))

	var g errgroup.Group
	if a.opts.MaxConcurrent > 0 {
		g.SetLimit(a.opts.MaxConcurrent)
	}
	for i, src := range enabled {
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Report{Results: results}, err
	}

	report := Report{Results: results}
	changed := false
	for _, r := range results {
		if r.OK() {
			changed = true
			break
		}
	}

	switch {
	case force:
		report.Reason = ReasonForced
	case changed:
		report.Reason = ReasonRefresh
	default:
		_, fresh, err := a.cache.GetClustered(ctx, cache.MasterID)
		if err != nil {
			return report, err
		}
		if !fresh {
			report.Reason = ReasonMissing
		}
	}

	if report.Reason != "" {
		pool, err := a.rebuild(ctx, enabled, report.Reason)
		if err != nil {
			metrics.Global.SetError(err.Error())
			return report, err
		}
		report.Rebuilt = true
		report.Master = pool
	}

	if err := a.cache.MarkSynced(ctx); err != nil {
		logger.Warn("Failed to record sync time", "error", err)
	}
	elapsed := time.Since(start)
	metrics.Global.RecordRefresh(elapsed)
	if len(enabled) > 0 && report.Failed() == len(enabled) {
		metrics.Global.SetError("all sources failed")
	} else {
		metrics.Global.SetLastRun()
	}
	logger.Info("Refresh finished",
		"sources", len(enabled),
		"failed", report.Failed(),
		"rebuilt", report.Rebuilt,
		"reason", report.Reason,
		"took", elapsed,
	)
	return report, nil
}

// ForceRefresh drops every per-source cache, then refreshes synchronously.
func (a *Aggregator) ForceRefresh(ctx context.Context, sources []rss.Source) (Report, error) {
	for _, src := range sources {
		if err := a.cache.Invalidate(ctx, src.ID()); err != nil {
			return Report{}, err
		}
	}
	return a.Refresh(ctx, sources, true)
}

// Rebuild recomputes the master pool from the cached raw lists.
func (a *Aggregator) Rebuild(ctx context.Context, sources []rss.Source) (models.ClusterPool, error) {
	return a.rebuild(ctx, enabledOnly(sources), ReasonForced)
}

// Master returns the master pool, rebuilding it when stale or missing.
func (a *Aggregator) Master(ctx context.Context, sources []rss.Source) (models.ClusterPool, error) {
	pool, fresh, err := a.cache.GetClustered(ctx, cache.MasterID)
	if err != nil {
		return nil, err
	}
	if fresh {
		return pool, nil
	}
	reason := ReasonStale
	if pool == nil {
		reason = ReasonMissing
	}
	return a.rebuild(ctx, enabledOnly(sources), reason)
}

// SourcePool returns the clustered pool of a single source.
func (a *Aggregator) SourcePool(ctx context.Context, id string) (models.ClusterPool, error) {
	return a.cache.Clustered(ctx, id, a.builder)
}

func (a *Aggregator) rebuild(ctx context.Context, enabled []rss.Source, reason string) (models.ClusterPool, error) {
	var all []models.Article
	for _, src := range enabled {
		rec, err := a.cache.GetRaw(ctx, src.ID())
		if err != nil {
			return nil, err
		}
		all = append(all, rec.Articles...)
	}

	merged := Merge(all, a.opts.MasterCap)
	if err := a.cache.PutRaw(ctx, cache.MasterID, merged); err != nil {
		return nil, fmt.Errorf("store master list: %w", err)
	}

	start := time.Now()
	pool := a.builder.Build(merged)
	metrics.ClusterPassDuration.Observe(time.Since(start).Seconds())

	if err := a.cache.PutClustered(ctx, cache.MasterID, pool); err != nil {
		return nil, fmt.Errorf("store master pool: %w", err)
	}

	clusters := pool.ClusterCount()
	metrics.MasterRebuilds.WithLabelValues(reason).Inc()
	metrics.PoolEntities.WithLabelValues(cache.MasterID, "cluster").Set(float64(clusters))
	metrics.PoolEntities.WithLabelValues(cache.MasterID, "article").Set(float64(len(pool) - clusters))
	metrics.Global.SetMasterSize(len(merged), clusters)
	logger.Debug("Master pool rebuilt", "reason", reason, "articles", len(merged), "entities", len(pool), "clusters", clusters)
	return pool, nil
}

// Merge deduplicates by link keeping the first occurrence, sorts newest
// first and truncates to limit (limit <= 0 keeps everything).
func Merge(articles []models.Article, limit int) []models.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if _, dup := seen[a.Link]; dup {
			continue
		}
		seen[a.Link] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func enabledOnly(sources []rss.Source) []rss.Source {
	out := make([]rss.Source, 0, len(sources))
	for _, s := range sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
