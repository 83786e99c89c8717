// Package news is the query and mutation facade used by the HTTP API, the
// CLI and the digest sender. It owns the source list and serializes every
// refresh so the background syncer and user requests never overlap.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/deusflow/newspulse/internal/aggregate"
	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/tags"
)

// FeedValidator checks a feed URL before it is added.
type FeedValidator func(ctx context.Context, feedURL string) (rss.FeedKind, error)

// Config holds the service timing knobs.
type Config struct {
	SourcesPath  string
	SyncInterval time.Duration
	SummaryTTL   time.Duration
}

// Service answers reader queries over the cached pools.
type Service struct {
	mu      sync.Mutex
	srcMu   sync.RWMutex
	sources *rss.SourcesConfig

	cfg      Config
	agg      *aggregate.Aggregator
	cache    *cache.Manager
	tags     *tags.Extractor
	lists    *tags.Lists
	lib      *library.Library
	validate FeedValidator
	sum      *summaries
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for sync and freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFeedValidator replaces the network check run by AddSource.
func WithFeedValidator(v FeedValidator) Option {
	return func(s *Service) { s.validate = v }
}

// WithSummaries enables Summarize.
func WithSummaries(extractor ArticleExtractor, summarizer Summarizer, limiter Limiter) Option {
	return func(s *Service) {
		s.sum = newSummaries(extractor, summarizer, limiter, s.cfg.SummaryTTL)
	}
}

// New wires a Service. sources is owned by the service from here on.
func New(cfg Config, sources *rss.SourcesConfig, agg *aggregate.Aggregator, cm *cache.Manager,
	extractor *tags.Extractor, lists *tags.Lists, lib *library.Library, opts ...Option) *Service {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 10 * time.Minute
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 24 * time.Hour
	}
	s := &Service{
		sources: sources,
		cfg:     cfg,
		agg:     agg,
		cache:   cm,
		tags:    extractor,
		lists:   lists,
		lib:     lib,
		now:     time.Now,
		validate: func(ctx context.Context, feedURL string) (rss.FeedKind, error) {
			return rss.ValidateURL(ctx, &http.Client{Timeout: 10 * time.Second}, feedURL)
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases background resources.
func (s *Service) Close() {
	if s.sum != nil {
		s.sum.memo.Stop()
	}
}

// Sources returns a copy of the configured sources in order.
func (s *Service) Sources() []rss.Source {
	s.srcMu.RLock()
	defer s.srcMu.RUnlock()
	return append([]rss.Source(nil), s.sources.Sources...)
}

// MasterPool returns the merged clustered pool. It syncs all feeds first
// when the last sync is older than the sync interval or no source has been
// cached yet.
func (s *Service) MasterPool(ctx context.Context) (models.ClusterPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := s.Sources()
	due, err := s.syncDue(ctx, sources)
	if err != nil {
		return nil, err
	}
	if due {
		report, err := s.agg.Refresh(ctx, sources, false)
		if err != nil {
			return nil, err
		}
		if report.Rebuilt {
			return report.Master, nil
		}
	}
	return s.agg.Master(ctx, sources)
}

func (s *Service) syncDue(ctx context.Context, sources []rss.Source) (bool, error) {
	last, err := s.cache.LastSync(ctx)
	if err != nil {
		return false, err
	}
	if last.IsZero() || s.now().Sub(last) > s.cfg.SyncInterval {
		return true, nil
	}
	cached, err := s.cache.CachedSources(ctx)
	if err != nil {
		return false, err
	}
	have := make(map[string]struct{}, len(cached))
	for _, id := range cached {
		have[id] = struct{}{}
	}
	enabled := 0
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if _, ok := have[src.ID()]; ok {
			return false, nil
		}
	}
	return enabled > 0, nil
}

// SourcePool returns the clustered pool of one source.
func (s *Service) SourcePool(ctx context.Context, id string) (models.ClusterPool, error) {
	s.srcMu.RLock()
	_, ok := s.sources.Find(id)
	s.srcMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", rss.ErrUnknownSource, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.SourcePool(ctx, id)
}

// Refresh syncs every enabled source now. force drops the per-source caches
// first.
func (s *Service) Refresh(ctx context.Context, force bool) (aggregate.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		return s.agg.ForceRefresh(ctx, s.Sources())
	}
	return s.agg.Refresh(ctx, s.Sources(), false)
}

// ForceRefresh drops every per-source cache and refetches before returning.
func (s *Service) ForceRefresh(ctx context.Context) (aggregate.Report, error) {
	return s.Refresh(ctx, true)
}

// TrendingTags extracts the trending tags of pool with the stored lists.
func (s *Service) TrendingTags(ctx context.Context, pool models.ClusterPool, unreadOnly bool) ([]models.TagEntry, error) {
	include, err := s.lists.Get(ctx, tags.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := s.lists.Get(ctx, tags.Exclude)
	if err != nil {
		return nil, err
	}
	read, err := s.lib.Links(ctx, library.Read)
	if err != nil {
		return nil, err
	}
	return s.tags.Extract(pool, tags.Options{
		Include:    include,
		Exclude:    exclude,
		UnreadOnly: unreadOnly,
		IsRead: func(link string) bool {
			_, ok := read[link]
			return ok
		},
	}), nil
}

// TagLists returns both user tag lists.
func (s *Service) TagLists(ctx context.Context) (include, exclude []string, err error) {
	if include, err = s.lists.Get(ctx, tags.Include); err != nil {
		return nil, nil, err
	}
	if exclude, err = s.lists.Get(ctx, tags.Exclude); err != nil {
		return nil, nil, err
	}
	return include, exclude, nil
}

// EditTags applies a smart edit ("+a, -b, c") to one list.
func (s *Service) EditTags(ctx context.Context, kind tags.Kind, input string) ([]string, error) {
	return s.lists.SmartEdit(ctx, kind, input)
}

// ReplaceTags overwrites one list.
func (s *Service) ReplaceTags(ctx context.Context, kind tags.Kind, list []string) ([]string, error) {
	return s.lists.Replace(ctx, kind, list)
}

// Save adds articles to a library list.
func (s *Service) Save(ctx context.Context, list library.List, articles ...models.Article) error {
	return s.lib.Add(ctx, list, articles...)
}

// Unsave removes links from a library list.
func (s *Service) Unsave(ctx context.Context, list library.List, links ...string) error {
	return s.lib.Remove(ctx, list, links...)
}

// Saved returns the entries of a library list, newest saved first.
func (s *Service) Saved(ctx context.Context, list library.List) ([]library.Entry, error) {
	entries, err := s.lib.Entries(ctx, list)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Bookmark saves articles for later.
func (s *Service) Bookmark(ctx context.Context, articles ...models.Article) error {
	return s.lib.Add(ctx, library.Bookmarks, articles...)
}

// Unbookmark drops links from the bookmarks.
func (s *Service) Unbookmark(ctx context.Context, links ...string) error {
	return s.lib.Remove(ctx, library.Bookmarks, links...)
}

// Favorite stars articles.
func (s *Service) Favorite(ctx context.Context, articles ...models.Article) error {
	return s.lib.Add(ctx, library.Favorites, articles...)
}

// Unfavorite drops links from the favorites.
func (s *Service) Unfavorite(ctx context.Context, links ...string) error {
	return s.lib.Remove(ctx, library.Favorites, links...)
}

// MarkRead records links as read.
func (s *Service) MarkRead(ctx context.Context, links ...string) error {
	return s.lib.MarkRead(ctx, links...)
}

// MarkUnread forgets links from the read history.
func (s *Service) MarkUnread(ctx context.Context, links ...string) error {
	return s.lib.Remove(ctx, library.Read, links...)
}

// MarkAllRead marks every article of pool as read.
func (s *Service) MarkAllRead(ctx context.Context, pool models.ClusterPool) error {
	return s.lib.MarkAllRead(ctx, pool)
}

// AddSource validates a feed URL and appends it to the source list.
func (s *Service) AddSource(ctx context.Context, name, feedURL string) (rss.Source, error) {
	kind, err := s.validate(ctx, feedURL)
	if err != nil {
		return rss.Source{}, fmt.Errorf("validate %s: %w", feedURL, err)
	}
	var added rss.Source
	err = s.editSources(ctx, func(c *rss.SourcesConfig) error {
		added, err = c.Add(name, feedURL)
		return err
	})
	if err != nil {
		return rss.Source{}, err
	}
	logger.Info("Source added", "name", added.Name, "kind", string(kind))
	return added, nil
}

// RemoveSource deletes a source and its cache slots.
func (s *Service) RemoveSource(ctx context.Context, id string) error {
	if err := s.editSources(ctx, func(c *rss.SourcesConfig) error { return c.Remove(id) }); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

// SetSourceEnabled switches a source on or off.
func (s *Service) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	return s.editSources(ctx, func(c *rss.SourcesConfig) error { return c.SetEnabled(id, enabled) })
}

// MoveSource shifts a source by delta positions.
func (s *Service) MoveSource(ctx context.Context, id string, delta int) error {
	return s.editSources(ctx, func(c *rss.SourcesConfig) error { return c.Move(id, delta) })
}

// editSources applies fn to a copy of the list, saves it and swaps it in.
// The master pool is rebuilt from the cached raw lists on the next read.
func (s *Service) editSources(ctx context.Context, fn func(*rss.SourcesConfig) error) error {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	next := &rss.SourcesConfig{Sources: append([]rss.Source(nil), s.sources.Sources...)}
	if err := fn(next); err != nil {
		return err
	}
	if s.cfg.SourcesPath != "" {
		if err := next.Save(s.cfg.SourcesPath); err != nil {
			return fmt.Errorf("save sources: %w", err)
		}
	}
	s.sources = next
	return s.cache.Invalidate(ctx, cache.MasterID)
}

// ReloadSources rereads the source file after an outside edit.
func (s *Service) ReloadSources(ctx context.Context) error {
	if s.cfg.SourcesPath == "" {
		return errors.New("news: no sources file configured")
	}
	next, err := rss.LoadSources(s.cfg.SourcesPath)
	if err != nil {
		return err
	}
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	s.sources = next
	logger.Info("Sources reloaded", "count", len(next.Sources))
	return s.cache.Invalidate(ctx, cache.MasterID)
}
