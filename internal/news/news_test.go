package news

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/aggregate"
	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/cluster"
	"github.com/deusflow/newspulse/internal/gemini"
	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/scraper"
	"github.com/deusflow/newspulse/internal/storage"
	"github.com/deusflow/newspulse/internal/tags"
)

type countingFetcher struct {
	mu    sync.Mutex
	items map[string][]models.Article
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, src rss.Source) ([]models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items[src.ID()], nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var start = time.Date(2026, 7, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	fetcher *countingFetcher
	clock   *clock
	store   storage.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := &clock{t: start}
	store := storage.NewMemoryStore()
	cm := cache.NewManager(store, cache.WithClock(clk.now))
	f := &countingFetcher{items: map[string][]models.Article{
		"wire": {
			{Title: "Central bank raises interest rates again", Link: "https://wire/1", Source: "Wire", PublishedAt: start.Add(-time.Hour)},
			{Title: "Flooding closes northern highway", Link: "https://wire/2", Source: "Wire", PublishedAt: start.Add(-3 * time.Hour)},
		},
		"daily": {
			{Title: "Central bank raises interest rates", Link: "https://daily/1", Source: "Daily", PublishedAt: start.Add(-2 * time.Hour)},
			{Title: "Local team wins championship final", Link: "https://daily/2", Source: "Daily", PublishedAt: start.Add(-20 * time.Hour)},
		},
	}}
	aopts := aggregate.DefaultOptions()
	aopts.Retry = retry.RetryConfig{MaxAttempts: 1}
	agg := aggregate.New(f, cm, cluster.NewBuilder(cluster.DefaultOptions()), aopts)
	sources := &rss.SourcesConfig{Sources: []rss.Source{
		{Name: "Wire", URL: "https://wire/feed", Enabled: true},
		{Name: "Daily", URL: "https://daily/feed", Enabled: true},
	}}
	opts = append([]Option{WithClock(clk.now)}, opts...)
	svc := New(Config{SyncInterval: 10 * time.Minute}, sources, agg, cm,
		tags.NewExtractor(nil, tags.Config{}), tags.NewLists(store), library.New(store), opts...)
	t.Cleanup(svc.Close)
	return &fixture{svc: svc, fetcher: f, clock: clk, store: store}
}

func TestMasterPoolSyncsOnInterval(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	pool, err := fx.svc.MasterPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.fetcher.calls)
	require.Len(t, pool, 3)
	assert.True(t, pool[0].IsCluster(), "the two rate stories merge")
	assert.Equal(t, 1, pool.ClusterCount())

	fx.clock.advance(5 * time.Minute)
	_, err = fx.svc.MasterPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.fetcher.calls, "within the sync interval the cache is served")

	fx.clock.advance(6 * time.Minute)
	_, err = fx.svc.MasterPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, fx.fetcher.calls)
}

func TestSourcePool(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.svc.Refresh(ctx, false)
	require.NoError(t, err)

	pool, err := fx.svc.SourcePool(ctx, "daily")
	require.NoError(t, err)
	assert.Len(t, pool, 2)

	_, err = fx.svc.SourcePool(ctx, "nope")
	assert.ErrorIs(t, err, rss.ErrUnknownSource)
}

func TestDisablingSourceRebuildsMaster(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.svc.MasterPool(ctx)
	require.NoError(t, err)

	require.NoError(t, fx.svc.SetSourceEnabled(ctx, "daily", false))
	pool, err := fx.svc.MasterPool(ctx)
	require.NoError(t, err)
	assert.Len(t, pool.Articles(), 2)
	assert.Equal(t, 2, fx.fetcher.calls)
}

func TestViewFiltersAndState(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	pool, err := fx.svc.MasterPool(ctx)
	require.NoError(t, err)

	require.NoError(t, fx.svc.MarkRead(ctx, "https://wire/2"))
	require.NoError(t, fx.svc.Favorite(ctx, pool[2].Primary()))
	require.NoError(t, fx.svc.Bookmark(ctx, pool[1].Primary()))

	page, err := fx.svc.View(ctx, pool, ViewOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, it := range page.Items {
		assert.NotEqual(t, "https://wire/2", it.Entity.Link())
	}

	page, err = fx.svc.View(ctx, pool, ViewOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	assert.True(t, page.Items[1].Read)
	assert.True(t, page.Items[2].Favorite)
	assert.True(t, page.Items[1].Bookmarked)
	assert.True(t, page.Items[0].Fresh)
	assert.False(t, page.Items[2].Fresh, "20 hours old is past the morning window")

	page, err = fx.svc.View(ctx, pool, ViewOptions{Search: "rate -flooding"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.True(t, page.Items[0].Entity.IsCluster())

	page, err = fx.svc.View(ctx, pool, ViewOptions{Search: "-bank"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	require.NoError(t, fx.svc.Unfavorite(ctx, pool[2].Link()))
	require.NoError(t, fx.svc.Unbookmark(ctx, pool[1].Link()))
	saved, err := fx.svc.Saved(ctx, library.Favorites)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestForceRefreshRefetches(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.svc.MasterPool(ctx)
	require.NoError(t, err)

	report, err := fx.svc.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, aggregate.ReasonForced, report.Reason)
	assert.Equal(t, 4, fx.fetcher.calls)
}

func TestViewClustersFirstAndPaging(t *testing.T) {
	c := models.NewStoryCluster(models.Article{Title: "Old cluster", Link: "c", PublishedAt: start.Add(-5 * time.Hour)})
	c.Attach(models.Article{Title: "Old cluster too", Link: "c2"})
	pool := models.ClusterPool{
		models.ArticleEntity(models.Article{Title: "Newest", Link: "a", PublishedAt: start}),
		models.ClusterEntity(c),
		models.ArticleEntity(models.Article{Title: "Older", Link: "b", PublishedAt: start.Add(-time.Hour)}),
	}
	fx := newFixture(t)

	page, err := fx.svc.View(context.Background(), pool, ViewOptions{ClustersFirst: true, PerPage: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "b", page.Items[0].Entity.Link())

	page, err = fx.svc.View(context.Background(), pool, ViewOptions{ClustersFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "c", page.Items[0].Entity.Link())

	page, err = fx.svc.View(context.Background(), pool, ViewOptions{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestQueryMatching(t *testing.T) {
	cases := []struct {
		query string
		title string
		want  bool
	}{
		{"senator", "Senators reject plan", true},
		{"senator", "Senatorial race heats up", false},
		{"plan -senator", "Senators back plan", false},
		{"", "anything", true},
		{"a.b", "axb story", false},
		{"-", "lonely dash", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseQuery(tc.query).Matches(tc.title), "%q on %q", tc.query, tc.title)
	}
}

func TestIsFresh(t *testing.T) {
	morning := time.Date(2026, 7, 3, 9, 0, 0, 0, time.Local)
	evening := time.Date(2026, 7, 3, 18, 0, 0, 0, time.Local)
	assert.True(t, IsFresh(morning.Add(-11*time.Hour), morning))
	assert.False(t, IsFresh(morning.Add(-13*time.Hour), morning))
	assert.True(t, IsFresh(evening.Add(-5*time.Hour), evening))
	assert.False(t, IsFresh(evening.Add(-7*time.Hour), evening))
}

func TestTrendingTagsUseStoredLists(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	pool := models.ClusterPool{}
	for i := 0; i < 3; i++ {
		pool = append(pool, models.ArticleEntity(models.Article{
			Title: fmt.Sprintf("Apple and Google story %d", i),
			Link:  fmt.Sprintf("l%d", i),
		}))
	}

	_, err := fx.svc.EditTags(ctx, tags.Exclude, "+google")
	require.NoError(t, err)
	out, err := fx.svc.TrendingTags(ctx, pool, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Apple", out[0].Tag)

	require.NoError(t, fx.svc.MarkRead(ctx, "l0"))
	out, err = fx.svc.TrendingTags(ctx, pool, true)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAddAndMoveSources(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	validator := func(_ context.Context, feedURL string) (rss.FeedKind, error) {
		if feedURL == "https://bad/feed" {
			return "", rss.ErrNotAFeed
		}
		return rss.KindAtom, nil
	}
	fx := newFixture(t, WithFeedValidator(validator))
	fx.svc.cfg.SourcesPath = path

	_, err := fx.svc.AddSource(ctx, "Bad", "https://bad/feed")
	assert.ErrorIs(t, err, rss.ErrNotAFeed)

	added, err := fx.svc.AddSource(ctx, "Tech Blog", "https://tech/feed")
	require.NoError(t, err)
	assert.Equal(t, "tech_blog", added.ID())

	require.NoError(t, fx.svc.MoveSource(ctx, "tech_blog", -5))
	assert.Equal(t, "Tech Blog", fx.svc.Sources()[0].Name)

	loaded, err := rss.LoadSources(path)
	require.NoError(t, err)
	require.Len(t, loaded.Sources, 3)
	assert.Equal(t, "Tech Blog", loaded.Sources[0].Name)

	require.NoError(t, fx.svc.RemoveSource(ctx, "wire"))
	require.NoError(t, fx.svc.ReloadSources(ctx))
	assert.Len(t, fx.svc.Sources(), 2)
}

type fakeExtractor struct{ calls int }

func (f *fakeExtractor) Extract(_ context.Context, url string) (*scraper.ArticleContent, error) {
	f.calls++
	if url == "https://broken" {
		return nil, scraper.ErrNoContent
	}
	return &scraper.ArticleContent{Title: "T", Content: "body of " + url, URL: url}, nil
}

type fakeSummarizer struct{ calls int }

func (f *fakeSummarizer) Summarize(_ context.Context, title, content string) (*gemini.Summary, error) {
	f.calls++
	return &gemini.Summary{Gist: title + ": " + content}, nil
}

type fakeLimiter struct {
	hits int
	deny bool
}

func (f *fakeLimiter) Acquire(context.Context) error {
	if f.deny {
		return errors.New("budget")
	}
	return nil
}

func (f *fakeLimiter) RecordCacheHit() { f.hits++ }

func TestSummarizeIsMemoized(t *testing.T) {
	ctx := context.Background()
	ex, sm, lim := &fakeExtractor{}, &fakeSummarizer{}, &fakeLimiter{}
	fx := newFixture(t, WithSummaries(ex, sm, lim))

	s, err := fx.svc.Summarize(ctx, "https://a")
	require.NoError(t, err)
	assert.Equal(t, "T: body of https://a", s.Gist)

	_, err = fx.svc.Summarize(ctx, "https://a")
	require.NoError(t, err)
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, 1, sm.calls)
	assert.Equal(t, 1, lim.hits)

	_, err = fx.svc.Summarize(ctx, "https://broken")
	assert.ErrorIs(t, err, scraper.ErrNoContent)

	lim.deny = true
	_, err = fx.svc.Summarize(ctx, "https://b")
	assert.Error(t, err)
	assert.Equal(t, 1, sm.calls)
}

func TestSummarizeDisabled(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Summarize(context.Background(), "https://a")
	assert.ErrorIs(t, err, ErrSummariesDisabled)
}
