package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/cluster"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	items map[string][]models.Article
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		items: make(map[string][]models.Article),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, src rss.Source) ([]models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[src.ID()]++
	if err := f.fail[src.ID()]; err != nil {
		return nil, err
	}
	return f.items[src.ID()], nil
}

func (f *fakeFetcher) set(id string, articles []models.Article, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = articles
	f.fail[id] = err
}

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func headlines(source string, n int, offset time.Duration) []models.Article {
	out := make([]models.Article, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Article{
			Title:       fmt.Sprintf("%s bulletin number %d about topic%d", source, i, i),
			Link:        fmt.Sprintf("https://%s.example/%d", source, i),
			Source:      source,
			PublishedAt: base.Add(-offset - time.Duration(i)*time.Minute),
		})
	}
	return out
}

func testAggregator(f Fetcher) (*Aggregator, *cache.Manager) {
	cm := cache.NewManager(storage.NewMemoryStore())
	opts := DefaultOptions()
	opts.Retry = retry.RetryConfig{MaxAttempts: 1}
	opts.FetchTimeout = time.Second
	return New(f, cm, cluster.NewBuilder(cluster.DefaultOptions()), opts), cm
}

func sources(names ...string) []rss.Source {
	out := make([]rss.Source, 0, len(names))
	for _, n := range names {
		out = append(out, rss.Source{Name: n, URL: "https://" + n + ".example/feed", Enabled: true})
	}
	return out
}

func TestMergeDedupSortCap(t *testing.T) {
	a := models.Article{Title: "A", Link: "l1", Source: "first", PublishedAt: base.Add(-time.Hour)}
	b := models.Article{Title: "B", Link: "l2", Source: "first", PublishedAt: base}
	dup := models.Article{Title: "A again", Link: "l1", Source: "second", PublishedAt: base.Add(time.Hour)}

	merged := Merge([]models.Article{a, b, dup}, 0)
	require.Len(t, merged, 2)
	assert.Equal(t, "l2", merged[0].Link)
	assert.Equal(t, "first", merged[1].Source, "the earlier source owns a duplicated link")

	assert.Len(t, Merge([]models.Article{a, b}, 1), 1)
}

func TestMasterCappedAtLimit(t *testing.T) {
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 800, 0), nil)
	f.set("beta", headlines("beta", 700, 30*time.Second), nil)
	agg, cm := testAggregator(f)

	report, err := agg.Refresh(context.Background(), sources("alpha", "beta"), false)
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, ReasonRefresh, report.Reason)

	raw, err := cm.GetRaw(context.Background(), cache.MasterID)
	require.NoError(t, err)
	require.Len(t, raw.Articles, 1000)
	for i := 1; i < len(raw.Articles); i++ {
		assert.False(t, raw.Articles[i].PublishedAt.After(raw.Articles[i-1].PublishedAt))
	}
	assert.Len(t, report.Master.Articles(), 1000)
}

func TestFailedSourceKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 3, 0), nil)
	f.set("beta", headlines("beta", 2, time.Hour), nil)
	agg, cm := testAggregator(f)
	srcs := sources("alpha", "beta")

	_, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)

	f.set("beta", nil, errors.New("connection reset"))
	f.set("alpha", headlines("alpha", 4, 0), nil)
	report, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())

	beta, err := cm.GetRaw(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, beta.Articles, 2, "a failed fetch must not clobber the previous list")

	master, err := agg.Master(ctx, srcs)
	require.NoError(t, err)
	assert.Len(t, master.Articles(), 6)
}

type stallingFetcher struct {
	*fakeFetcher
	mu    sync.Mutex
	stall map[string]bool
}

func (f *stallingFetcher) Fetch(ctx context.Context, src rss.Source) ([]models.Article, error) {
	f.mu.Lock()
	stall := f.stall[src.ID()]
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.fakeFetcher.Fetch(ctx, src)
}

func TestSlowSourceIsCutOffByFetchTimeout(t *testing.T) {
	ctx := context.Background()
	f := &stallingFetcher{fakeFetcher: newFakeFetcher(), stall: make(map[string]bool)}
	f.set("alpha", headlines("alpha", 3, 0), nil)
	f.set("beta", headlines("beta", 2, time.Hour), nil)

	cm := cache.NewManager(storage.NewMemoryStore())
	opts := DefaultOptions()
	opts.Retry = retry.RetryConfig{MaxAttempts: 1}
	opts.FetchTimeout = 100 * time.Millisecond
	agg := New(f, cm, cluster.NewBuilder(cluster.DefaultOptions()), opts)
	srcs := sources("alpha", "beta")

	_, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)

	f.mu.Lock()
	f.stall["beta"] = true
	f.mu.Unlock()
	f.set("alpha", headlines("alpha", 4, 0), nil)

	began := time.Now()
	report, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 2*time.Second, "the join waits at most about one fetch timeout")
	assert.Equal(t, 1, report.Failed())
	for _, r := range report.Results {
		if r.SourceID == "beta" {
			assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
		}
	}

	beta, err := cm.GetRaw(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, beta.Articles, 2, "the timed out source keeps its previous list")

	master, err := agg.Master(ctx, srcs)
	require.NoError(t, err)
	assert.Len(t, master.Articles(), 6)
}

func TestNoRebuildWhenNothingChanged(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 2, 0), nil)
	agg, _ := testAggregator(f)
	srcs := sources("alpha")

	_, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)

	f.set("alpha", nil, errors.New("timeout"))
	report, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)
	assert.False(t, report.Rebuilt)

	report, err = agg.Refresh(ctx, srcs, true)
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, ReasonForced, report.Reason)
}

func TestMissingMasterIsBuiltEvenWhenAllFail(t *testing.T) {
	f := newFakeFetcher()
	f.set("alpha", nil, errors.New("dns"))
	agg, _ := testAggregator(f)

	report, err := agg.Refresh(context.Background(), sources("alpha"), false)
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, ReasonMissing, report.Reason)
	assert.Empty(t, report.Master)
}

func TestRebuildIsDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 20, 0), nil)
	f.set("beta", headlines("beta", 20, 10*time.Second), nil)
	agg, cm := testAggregator(f)
	srcs := sources("alpha", "beta")

	_, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)
	first, _, err := cm.GetClustered(ctx, cache.MasterID)
	require.NoError(t, err)

	_, err = agg.Rebuild(ctx, srcs)
	require.NoError(t, err)
	second, fresh, err := cm.GetClustered(ctx, cache.MasterID)
	require.NoError(t, err)
	assert.True(t, fresh)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestDisabledSourcesAreSkipped(t *testing.T) {
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 2, 0), nil)
	f.set("beta", headlines("beta", 2, 0), nil)
	agg, _ := testAggregator(f)
	srcs := sources("alpha", "beta")
	srcs[1].Enabled = false

	report, err := agg.Refresh(context.Background(), srcs, false)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Zero(t, f.calls["beta"])
	assert.Len(t, report.Master.Articles(), 2)
}

func TestForceRefreshInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("alpha", headlines("alpha", 2, 0), nil)
	agg, cm := testAggregator(f)
	srcs := sources("alpha")

	_, err := agg.Refresh(ctx, srcs, false)
	require.NoError(t, err)

	f.set("alpha", nil, errors.New("gone"))
	report, err := agg.ForceRefresh(ctx, srcs)
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)

	raw, err := cm.GetRaw(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, raw.Present)
	assert.Empty(t, report.Master)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("alpha", nil, errors.New("503"))
	agg, _ := testAggregator(f)
	srcs := sources("alpha")

	for i := 0; i < 5; i++ {
		_, err := agg.Refresh(ctx, srcs, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.calls["alpha"], "an open breaker short-circuits further fetches")
}

func TestSanitizeDropsUndatedItems(t *testing.T) {
	src := rss.Source{Name: "wire"}
	out := sanitize([]models.Article{
		{Title: "ok", Link: "l1", PublishedAt: base},
		{Title: "no date", Link: "l2"},
		{Title: "no link", PublishedAt: base},
	}, src)
	require.Len(t, out, 1)
	assert.Equal(t, "wire", out[0].Source)
}
