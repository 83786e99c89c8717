// Package similarity scores how likely two headlines describe the same story.
package similarity

import (
	"github.com/deusflow/newspulse/internal/textnorm"
)

const (
	// EntityBonus is added when both headlines name the same entity.
	EntityBonus = 0.12
	// entityBonusFloor is the base overlap required before the bonus applies.
	entityBonusFloor = 0.1
)

// Result is a similarity score in [0, 1] plus the smaller token count of the
// two headlines, used by callers to pick a threshold.
type Result struct {
	Score         float64
	MinTokenCount int
}

// Scorer compares headlines. Normalization results are memoized, so a Scorer
// is meant to live for one clustering pass; it is not safe for concurrent use.
type Scorer struct {
	norm *textnorm.Normalizer
	memo map[string]textnorm.Normalized
}

// NewScorer returns a Scorer; a nil normalizer selects the default lexicon.
func NewScorer(n *textnorm.Normalizer) *Scorer {
	if n == nil {
		n = textnorm.New(nil)
	}
	return &Scorer{norm: n, memo: make(map[string]textnorm.Normalized)}
}

// Score compares two raw headlines.
func (s *Scorer) Score(a, b string) Result {
	return ScoreNormalized(s.normalize(a), s.normalize(b))
}

func (s *Scorer) normalize(title string) textnorm.Normalized {
	if n, ok := s.memo[title]; ok {
		return n
	}
	n := s.norm.Normalize(title)
	s.memo[title] = n
	return n
}

// Score compares two headlines with the default lexicon.
func Score(a, b string) Result {
	return ScoreNormalized(textnorm.Normalize(a), textnorm.Normalize(b))
}

// ScoreNormalized is the Jaccard overlap of the token sets with a bonus for
// shared entities, capped at 1.
func ScoreNormalized(a, b textnorm.Normalized) Result {
	res := Result{MinTokenCount: min(len(a.Tokens), len(b.Tokens))}
	if len(a.Tokens) == 0 || len(b.Tokens) == 0 {
		return res
	}

	base := Jaccard(a.Tokens, b.Tokens)
	res.Score = WithEntityBonus(base, intersects(a.Entities, b.Entities))
	return res
}

// WithEntityBonus applies the entity bonus to a base score.
func WithEntityBonus(base float64, sharedEntity bool) float64 {
	if sharedEntity && base > entityBonusFloor {
		base += EntityBonus
	}
	return min(base, 1.0)
}

// Jaccard is |a ∩ b| / |a ∪ b| over two deduplicated sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, e := range a {
		set[e] = struct{}{}
	}
	for _, e := range b {
		if _, ok := set[e]; ok {
			return true
		}
	}
	return false
}
