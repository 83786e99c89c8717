package news

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/gemini"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/scraper"
)

// ErrSummariesDisabled is returned by Summarize when no summarizer is wired.
var ErrSummariesDisabled = errors.New("news: summaries are not configured")

// ArticleExtractor downloads the full text of an article.
type ArticleExtractor interface {
	Extract(ctx context.Context, url string) (*scraper.ArticleContent, error)
}

// Summarizer condenses article text.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (*gemini.Summary, error)
}

// Limiter paces and budgets summarizer calls.
type Limiter interface {
	Acquire(ctx context.Context) error
	RecordCacheHit()
}

type summaries struct {
	extractor  ArticleExtractor
	summarizer Summarizer
	limiter    Limiter
	memo       *cache.Memo[*gemini.Summary]
	ttl        time.Duration
}

func newSummaries(extractor ArticleExtractor, summarizer Summarizer, limiter Limiter, ttl time.Duration) *summaries {
	return &summaries{
		extractor:  extractor,
		summarizer: summarizer,
		limiter:    limiter,
		memo:       cache.NewMemo[*gemini.Summary](10 * time.Minute),
		ttl:        ttl,
	}
}

// Summarize extracts the article at link and summarizes it. Results are
// memoized per link for the summary TTL.
func (s *Service) Summarize(ctx context.Context, link string) (*gemini.Summary, error) {
	if s.sum == nil {
		return nil, ErrSummariesDisabled
	}
	return s.sum.get(ctx, link)
}

func (sm *summaries) get(ctx context.Context, link string) (*gemini.Summary, error) {
	key := cache.Key("summary", link)
	if cached, ok := sm.memo.Get(key); ok {
		if sm.limiter != nil {
			sm.limiter.RecordCacheHit()
		}
		metrics.Summaries.WithLabelValues("cached").Inc()
		return cached, nil
	}

	article, err := sm.extractor.Extract(ctx, link)
	if err != nil {
		metrics.Summaries.WithLabelValues("extract_error").Inc()
		return nil, fmt.Errorf("extract %s: %w", link, err)
	}

	if sm.limiter != nil {
		if err := sm.limiter.Acquire(ctx); err != nil {
			metrics.Summaries.WithLabelValues("limited").Inc()
			return nil, err
		}
	}
	summary, err := sm.summarizer.Summarize(ctx, article.Title, article.Content)
	if err != nil {
		metrics.Summaries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("summarize %s: %w", link, err)
	}

	sm.memo.Set(key, summary, sm.ttl)
	metrics.Summaries.WithLabelValues("ok").Inc()
	logger.Debug("Article summarized", "url", link, "chars", len(article.Content))
	return summary, nil
}
