package cluster

import (
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspulse/internal/models"
)

var t0 = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

func art(link, source, title string, ago time.Duration) models.Article {
	return models.Article{Title: title, Link: link, Source: source, PublishedAt: t0.Add(-ago)}
}

func TestBuildGroupsAcrossSources(t *testing.T) {
	b := NewBuilder(Options{})
	pool := b.Build([]models.Article{
		art("a1", "wire", "Earthquake strikes central Chile coast", 0),
		art("b1", "daily", "Quarterly earnings beat expectations at chipmaker", time.Hour),
		art("a2", "herald", "Powerful earthquake strikes Chile coast", 2*time.Hour),
	})

	require.Len(t, pool, 2)
	require.True(t, pool[0].IsCluster())
	assert.Equal(t, []string{"a1", "a2"}, pool[0].Links())
	assert.False(t, pool[1].IsCluster())
}

func TestBuildDedupIsIdempotent(t *testing.T) {
	articles := []models.Article{
		art("a1", "wire", "Earthquake strikes central Chile coast", 0),
		art("a2", "herald", "Powerful earthquake strikes Chile coast", time.Hour),
		art("c1", "daily", "Senate passes farm bill", 2*time.Hour),
	}
	withDupes := append([]models.Article{}, articles...)
	withDupes = append(withDupes, art("a1", "other", "Different title same link", 3*time.Hour))
	withDupes = append(withDupes, art("c1", "daily", "Senate passes farm bill", 4*time.Hour))

	b := NewBuilder(Options{})
	want, err := json.Marshal(b.Build(articles))
	require.NoError(t, err)
	got, err := json.Marshal(b.Build(withDupes))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestBuildTimeWindow(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		cluster bool
	}{
		{"inside window", 35 * time.Hour, true},
		{"at window edge", 36 * time.Hour, true},
		{"outside window", 37 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewBuilder(Options{}).Build([]models.Article{
				art("x", "wire", "Volcano erupts near Reykjavik airport", 0),
				art("y", "herald", "Volcano erupts near Reykjavik airport", tt.gap),
			})
			if tt.cluster {
				require.Len(t, pool, 1)
				assert.True(t, pool[0].IsCluster())
			} else {
				assert.Len(t, pool, 2)
			}
		})
	}
}

func TestBuildStopsScanOutsideWindow(t *testing.T) {
	// c would match a, but b sits between them and is already outside the window.
	pool := NewBuilder(Options{}).Build([]models.Article{
		art("a", "wire", "Volcano erupts near Reykjavik airport", 0),
		art("b", "daily", "Senate passes farm bill", 37*time.Hour),
		art("c", "herald", "Volcano erupts near Reykjavik airport", 38*time.Hour),
	})
	assert.Len(t, pool, 3)
	assert.Zero(t, pool.ClusterCount())
}

func TestBuildSameSourceGuard(t *testing.T) {
	// 7 shared tokens out of 20: score 0.35, above the 0.28 threshold but
	// below the 0.40 required for two headlines of the same source.
	a := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike"
	b := "alpha bravo charlie delta echo foxtrot golf november oscar papa quebec romeo sierra tango"

	same := NewBuilder(Options{}).Build([]models.Article{
		art("1", "wire", a, 0),
		art("2", "wire", b, time.Hour),
	})
	assert.Len(t, same, 2)

	cross := NewBuilder(Options{}).Build([]models.Article{
		art("1", "wire", a, 0),
		art("2", "herald", b, time.Hour),
	})
	require.Len(t, cross, 1)
	assert.True(t, cross[0].IsCluster())
}

func TestBuildShortTitlesUseLowerThreshold(t *testing.T) {
	// 1 of 4 tokens shared: 0.25 clears the short threshold only.
	articles := []models.Article{
		art("1", "wire", "alpha bravo charlie", 0),
		art("2", "herald", "alpha delta", time.Hour),
	}
	assert.Len(t, NewBuilder(Options{}).Build(articles), 1)
	assert.Len(t, NewBuilder(Options{ShortThreshold: 0.3}).Build(articles), 2)
}

func TestBuildFirstMatchWinsNewestFirst(t *testing.T) {
	pool := NewBuilder(Options{}).Build([]models.Article{
		art("a", "s1", "alpha bravo charlie delta", 0),
		art("b", "s2", "echo foxtrot golf hotel", time.Hour),
		art("c", "s3", "alpha bravo echo foxtrot", 2*time.Hour),
	})
	require.Len(t, pool, 2)
	assert.Equal(t, []string{"a"}, pool[0].Links())
	assert.Equal(t, []string{"b", "c"}, pool[1].Links())
}

func TestBuildComparesAgainstPrimaryOnly(t *testing.T) {
	pool := NewBuilder(Options{}).Build([]models.Article{
		art("a", "s1", "alpha bravo charlie delta", 0),
		art("b", "s2", "alpha bravo charlie echo", time.Hour),
		// matches b well but a only weakly
		art("c", "s3", "charlie echo foxtrot golf hotel india", 2*time.Hour),
	})
	require.Len(t, pool, 2)
	assert.Equal(t, []string{"a", "b"}, pool[0].Links())
	assert.Equal(t, []string{"c"}, pool[1].Links())
}

func TestBuildThresholdMonotonicity(t *testing.T) {
	articles := []models.Article{
		art("a1", "wire", "Earthquake strikes central Chile coast", 0),
		art("b1", "daily", "Parliament approves pension reform plan", time.Hour),
		art("a2", "herald", "Earthquake strikes central Chile coast", 2*time.Hour),
		art("b2", "post", "Pension reform plan clears parliament vote", 3*time.Hour),
		art("c1", "gazette", "Rover finds ancient riverbed on Mars", 4*time.Hour),
	}

	prev := len(articles)
	for thr := 0.05; thr <= 1.0; thr += 0.05 {
		t.Run(fmt.Sprintf("%.2f", thr), func(t *testing.T) {
			pool := NewBuilder(Options{Threshold: thr, ShortThreshold: thr}).Build(articles)
			n := pool.ClusterCount()
			assert.LessOrEqual(t, n, prev)
			prev = n
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	articles := []models.Article{
		art("a1", "wire", "Earthquake strikes central Chile coast", 0),
		art("a2", "herald", "Powerful earthquake strikes Chile coast", time.Hour),
		art("b1", "daily", "Parliament approves pension reform plan", 2*time.Hour),
	}
	first, err := json.Marshal(NewBuilder(Options{}).Build(articles))
	require.NoError(t, err)
	second, err := json.Marshal(NewBuilder(Options{}).Build(articles))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildObserverSeesMatches(t *testing.T) {
	var matches []Match
	b := NewBuilder(Options{}, WithObserver(func(m Match) { matches = append(matches, m) }))
	b.Build([]models.Article{
		art("a1", "wire", "Earthquake strikes central Chile coast", 0),
		art("a2", "herald", "Earthquake strikes central Chile coast", time.Hour),
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "a2", matches[0].Article.Link)
	assert.Equal(t, "a1", matches[0].Candidate.Link)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestBuildEmptyTitlesStaySingletons(t *testing.T) {
	pool := NewBuilder(Options{}).Build([]models.Article{
		art("a", "s1", "", 0),
		art("b", "s2", "", time.Hour),
	})
	assert.Len(t, pool, 2)
}
