// Package cluster groups near-duplicate headlines from different sources into
// story clusters with a single greedy pass.
package cluster

import (
	"time"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/similarity"
	"github.com/deusflow/newspulse/internal/textnorm"
)

// Options tunes the builder. Zero fields fall back to DefaultOptions.
type Options struct {
	Window              time.Duration `koanf:"window"`
	Threshold           float64       `koanf:"threshold"`
	ShortThreshold      float64       `koanf:"short_threshold"`
	ShortTokenLimit     int           `koanf:"short_token_limit"`
	SameSourceThreshold float64       `koanf:"same_source_threshold"`
}

// DefaultOptions are the tuned constants the engine ships with.
func DefaultOptions() Options {
	return Options{
		Window:              36 * time.Hour,
		Threshold:           0.28,
		ShortThreshold:      0.20,
		ShortTokenLimit:     5,
		SameSourceThreshold: 0.40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.ShortThreshold <= 0 {
		o.ShortThreshold = d.ShortThreshold
	}
	if o.ShortTokenLimit <= 0 {
		o.ShortTokenLimit = d.ShortTokenLimit
	}
	if o.SameSourceThreshold <= 0 {
		o.SameSourceThreshold = d.SameSourceThreshold
	}
	return o
}

// Match describes one accepted pairing, reported to an Observer.
type Match struct {
	Article   models.Article
	Candidate models.Article
	Score     float64
	Threshold float64
}

// Observer receives every accepted match. Used for debug logging.
type Observer func(Match)

// Builder clusters a date-sorted list of articles.
type Builder struct {
	opts     Options
	norm     *textnorm.Normalizer
	observer Observer
}

// Option configures a Builder.
type Option func(*Builder)

// WithNormalizer swaps the headline normalizer.
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(b *Builder) { b.norm = n }
}

// WithObserver registers a match observer.
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// NewBuilder returns a Builder with the given options.
func NewBuilder(opts Options, options ...Option) *Builder {
	b := &Builder{opts: opts.withDefaults()}
	for _, o := range options {
		o(b)
	}
	if b.norm == nil {
		b.norm = textnorm.New(nil)
	}
	return b
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// Build clusters articles, which must be sorted by date descending.
// Duplicate links are dropped, first occurrence wins. Each article joins the
// first compatible entry found scanning the output newest-added first, or
// becomes a singleton. The scan stops at the first entry outside the time
// window, so the input order matters.
func (b *Builder) Build(articles []models.Article) models.ClusterPool {
	scorer := similarity.NewScorer(b.norm)
	seen := make(map[string]struct{}, len(articles))
	out := make(models.ClusterPool, 0, len(articles))

	for _, a := range articles {
		if _, dup := seen[a.Link]; dup {
			continue
		}
		seen[a.Link] = struct{}{}

		if idx := b.findMatch(scorer, out, a); idx >= 0 {
			out[idx].Promote().Attach(a)
			continue
		}
		out = append(out, models.ArticleEntity(a))
	}
	return out
}

func (b *Builder) findMatch(scorer *similarity.Scorer, out models.ClusterPool, a models.Article) int {
	for i := len(out) - 1; i >= 0; i-- {
		cand := out[i].Primary()
		if absDuration(a.PublishedAt.Sub(cand.PublishedAt)) > b.opts.Window {
			break
		}

		res := scorer.Score(a.Title, cand.Title)
		threshold := b.opts.Threshold
		if res.MinTokenCount <= b.opts.ShortTokenLimit {
			threshold = b.opts.ShortThreshold
		}
		if res.Score < threshold {
			continue
		}
		if a.Source == cand.Source && res.Score < b.opts.SameSourceThreshold {
			continue
		}

		if b.observer != nil {
			b.observer(Match{Article: a, Candidate: cand, Score: res.Score, Threshold: threshold})
		}
		return i
	}
	return -1
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
