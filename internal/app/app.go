package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/deusflow/newspulse/internal/aggregate"
	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/cluster"
	"github.com/deusflow/newspulse/internal/config"
	"github.com/deusflow/newspulse/internal/gemini"
	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/ratelimit"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/scraper"
	"github.com/deusflow/newspulse/internal/storage"
	"github.com/deusflow/newspulse/internal/tags"
	"github.com/deusflow/newspulse/internal/telegram"
)

var errDigestDisabled = errors.New("telegram is not configured")

// App holds the wired components shared by every command.
type App struct {
	Config   *config.Config
	Store    storage.Store
	News     *news.Service
	Telegram *telegram.Client

	gemini *gemini.Client
}

// Open loads the config and wires storage, the aggregator and the news
// service. Summaries and the Telegram digest are wired only when configured.
func Open(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{Debug: cfg.Debug, Format: cfg.Log.Format})
	return OpenWithConfig(ctx, cfg)
}

// OpenWithConfig wires an already loaded config.
func OpenWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	sources, err := rss.LoadSources(cfg.Feeds.SourcesPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Sources file not found, starting with no sources", "path", cfg.Feeds.SourcesPath)
		sources, err = &rss.SourcesConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cm := cache.NewManager(store)
	fetcher := rss.NewFetcher(&http.Client{Timeout: cfg.Feeds.FetchTimeout}, cfg.Feeds.Expiry)
	agg := aggregate.New(fetcher, cm, cluster.NewBuilder(cfg.Cluster), aggregate.Options{
		FetchTimeout: cfg.Feeds.FetchTimeout,
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.Feeds.RetryAttempts,
			Delay:       cfg.Feeds.RetryDelay,
			Backoff:     true,
		},
		MasterCap:       cfg.Feeds.MasterCap,
		BreakerFailures: cfg.Feeds.BreakerFailures,
		BreakerCooldown: cfg.Feeds.BreakerCooldown,
	})

	a := &App{Config: cfg, Store: store}
	var opts []news.Option
	if cfg.SummariesEnabled() {
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		a.gemini = client
		limiter := ratelimit.NewAIRateLimiter(cfg.Gemini.PerMinute, cfg.Gemini.MaxPerDay)
		opts = append(opts, news.WithSummaries(scraper.New(nil), client, limiter))
	}
	if cfg.DigestEnabled() {
		a.Telegram = telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID)
	}

	a.News = news.New(news.Config{
		SourcesPath:  cfg.Feeds.SourcesPath,
		SyncInterval: cfg.Feeds.SyncInterval,
		SummaryTTL:   cfg.Gemini.SummaryTTL,
	}, sources, agg, cm,
		tags.NewExtractor(nil, cfg.Tags), tags.NewLists(store), library.New(store), opts...)
	return a, nil
}

// Close releases the store and the model client.
func (a *App) Close() error {
	a.News.Close()
	if a.gemini != nil {
		a.gemini.Close()
	}
	return a.Store.Close()
}

// SendDigest posts the top clusters of the master pool to Telegram.
func (a *App) SendDigest(ctx context.Context) error {
	if a.Telegram == nil {
		return errDigestDisabled
	}
	pool, err := a.News.MasterPool(ctx)
	if err != nil {
		return err
	}
	return a.Telegram.SendDigest(ctx, pool, a.Config.Telegram.DigestSize, time.Now())
}
