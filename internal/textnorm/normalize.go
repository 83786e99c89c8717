// Package textnorm turns headlines into the token and entity sets used for
// similarity scoring.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxWords      = 15
	minTokenRunes = 2
	softDropAbove = 5
)

// Normalized is the token and entity view of one headline. Both slices are
// deduplicated and keep first-seen order.
type Normalized struct {
	Tokens   []string
	Entities []string
}

// Normalizer applies a Lexicon to headlines.
type Normalizer struct {
	lx *Lexicon
}

// New returns a Normalizer; a nil lexicon selects the embedded default.
func New(lx *Lexicon) *Normalizer {
	if lx == nil {
		lx = Default()
	}
	return &Normalizer{lx: lx}
}

// Normalize uses the embedded lexicon.
func Normalize(title string) Normalized {
	return New(nil).Normalize(title)
}

// Lexicon exposes the word lists in use.
func (n *Normalizer) Lexicon() *Lexicon { return n.lx }

// Normalize computes the token and entity sets of a headline.
func (n *Normalizer) Normalize(title string) Normalized {
	stripped := n.lx.StripLabel(title)
	return Normalized{
		Tokens:   n.tokens(stripped),
		Entities: n.entities(stripped),
	}
}

// entities runs on the original casing: capitalized words are the cheap
// stand-in for proper nouns.
func (n *Normalizer) entities(s string) []string {
	words := strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) })
	seen := make(map[string]struct{})
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		first, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(first) || unicode.ToLower(first) == first {
			continue
		}
		lw := strings.ToLower(w)
		if n.lx.IsHardStopword(lw) {
			continue
		}
		if _, ok := seen[lw]; ok {
			continue
		}
		seen[lw] = struct{}{}
		out = append(out, lw)
	}
	return out
}

func (n *Normalizer) tokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	words := strings.Fields(cleaned)
	if len(words) > maxWords {
		words = words[:maxWords]
	}

	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTokenRunes || n.lx.IsHardStopword(w) {
			continue
		}
		w = n.lx.Canonical(w)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	if len(out) > softDropAbove {
		kept := out[:0]
		for _, w := range out {
			if !n.lx.IsSoftStopword(w) {
				kept = append(kept, w)
			}
		}
		out = kept
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
