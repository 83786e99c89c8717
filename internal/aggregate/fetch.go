package aggregate

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
	"github.com/deusflow/newspulse/internal/rss"
)

// Fetcher downloads the current items of one source.
type Fetcher interface {
	Fetch(ctx context.Context, src rss.Source) ([]models.Article, error)
}

// FetchResult is the outcome of one source fetch within a refresh.
type FetchResult struct {
	SourceID string        `json:"source_id"`
	Source   string        `json:"source"`
	Articles int           `json:"articles"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the fetch produced a new raw list.
func (r FetchResult) OK() bool { return r.Err == nil }

type breakers struct {
	mu       sync.Mutex
	failures uint32
	cooldown time.Duration
	bySource map[string]*gobreaker.CircuitBreaker[[]models.Article]
}

func newBreakers(failures uint32, cooldown time.Duration) *breakers {
	return &breakers{
		failures: failures,
		cooldown: cooldown,
		bySource: make(map[string]*gobreaker.CircuitBreaker[[]models.Article]),
	}
}

func (b *breakers) get(id string) *gobreaker.CircuitBreaker[[]models.Article] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.bySource[id]; ok {
		return cb
	}
	failures := b.failures
	cb := gobreaker.NewCircuitBreaker[[]models.Article](gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Feed circuit breaker changed state", "source", name, "from", from.String(), "to", to.String())
		},
	})
	b.bySource[id] = cb
	return cb
}

// fetchOne runs one source fetch behind its breaker, retrying each attempt
// with its own timeout.
func (a *Aggregator) fetchOne(ctx context.Context, src rss.Source) FetchResult {
	start := time.Now()
	res := FetchResult{SourceID: src.ID(), Source: src.Name}

	articles, err := a.breakers.get(src.ID()).Execute(func() ([]models.Article, error) {
		var out []models.Article
		err := retry.WithRetry(ctx, a.opts.Retry, func(ctx context.Context) error {
			fctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
			defer cancel()
			got, err := a.fetcher.Fetch(fctx, src)
			if err != nil {
				return err
			}
			out = got
			return nil
		})
		return out, err
	})
	res.Duration = time.Since(start)
	metrics.FeedFetchDuration.WithLabelValues(src.ID()).Observe(res.Duration.Seconds())

	if err != nil {
		res.Err = err
		res.Error = err.Error()
		label := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			label = "open"
		}
		metrics.FeedFetchTotal.WithLabelValues(src.ID(), label).Inc()
		metrics.Global.IncrementFailedFetches()
		logger.Warn("Feed fetch failed, keeping cached items", "source", src.Name, "error", err)
		return res
	}

	articles = sanitize(articles, src)
	if err := a.cache.PutRaw(ctx, src.ID(), articles); err != nil {
		res.Err = err
		res.Error = err.Error()
		metrics.FeedFetchTotal.WithLabelValues(src.ID(), "error").Inc()
		logger.Error("Failed to store raw items", "source", src.Name, "error", err)
		return res
	}
	res.Articles = len(articles)
	metrics.FeedFetchTotal.WithLabelValues(src.ID(), "ok").Inc()
	metrics.ArticlesIngested.WithLabelValues(src.ID()).Add(float64(len(articles)))
	return res
}

// sanitize drops items no fetcher should have produced: no link or no date.
func sanitize(in []models.Article, src rss.Source) []models.Article {
	out := make([]models.Article, 0, len(in))
	for _, a := range in {
		if a.Link == "" || a.PublishedAt.IsZero() {
			continue
		}
		if a.Source == "" {
			a.Source = src.Name
		}
		out = append(out, a)
	}
	return out
}
