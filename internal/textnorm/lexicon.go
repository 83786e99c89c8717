package textnorm

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// LexiconFile is the YAML layout of a lexicon.
type LexiconFile struct {
	LabelPrefixes []string            `yaml:"label_prefixes"`
	HardStopwords []string            `yaml:"hard_stopwords"`
	SoftStopwords []string            `yaml:"soft_stopwords"`
	Canonical     map[string][]string `yaml:"canonical"`
	TagBlacklist  []string            `yaml:"tag_blacklist"`
}

// Lexicon is the compiled form of a LexiconFile.
type Lexicon struct {
	hard      map[string]struct{}
	soft      map[string]struct{}
	canonical map[string]string
	blacklist map[string]struct{}
	prefix    *regexp.Regexp
}

// LoadLexicon parses a YAML lexicon.
func LoadLexicon(r io.Reader) (*Lexicon, error) {
	var f LexiconFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	return Compile(f)
}

// Compile builds lookup tables from a LexiconFile.
func Compile(f LexiconFile) (*Lexicon, error) {
	lx := &Lexicon{
		hard:      toSet(f.HardStopwords),
		soft:      toSet(f.SoftStopwords),
		canonical: make(map[string]string),
		blacklist: toSet(f.TagBlacklist),
	}
	for canon, variants := range f.Canonical {
		canon = strings.ToLower(strings.TrimSpace(canon))
		for _, v := range variants {
			v = strings.ToLower(strings.TrimSpace(v))
			if prev, ok := lx.canonical[v]; ok && prev != canon {
				return nil, fmt.Errorf("lexicon: %q maps to both %q and %q", v, prev, canon)
			}
			lx.canonical[v] = canon
		}
	}
	if len(f.LabelPrefixes) > 0 {
		quoted := make([]string, 0, len(f.LabelPrefixes))
		for _, p := range f.LabelPrefixes {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(p))))
		}
		re, err := regexp.Compile(`(?i)^\s*(?:` + strings.Join(quoted, "|") + `)\s*:\s*`)
		if err != nil {
			return nil, fmt.Errorf("lexicon prefixes: %w", err)
		}
		lx.prefix = re
	}
	return lx, nil
}

var (
	defaultOnce sync.Once
	defaultLx   *Lexicon
)

// Default returns the embedded lexicon. It panics if the embedded file is broken.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		lx, err := LoadLexicon(strings.NewReader(string(defaultLexicon)))
		if err != nil {
			panic(err)
		}
		defaultLx = lx
	})
	return defaultLx
}

// IsHardStopword reports whether the lower-cased word is always discarded.
func (lx *Lexicon) IsHardStopword(w string) bool {
	_, ok := lx.hard[strings.ToLower(w)]
	return ok
}

// IsSoftStopword reports whether the word is dropped from longer titles.
func (lx *Lexicon) IsSoftStopword(w string) bool {
	_, ok := lx.soft[strings.ToLower(w)]
	return ok
}

// Canonical maps a lower-cased token to its canonical form.
func (lx *Lexicon) Canonical(w string) string {
	if c, ok := lx.canonical[w]; ok {
		return c
	}
	return w
}

// IsBlacklistedTag reports whether a candidate tag is never surfaced.
func (lx *Lexicon) IsBlacklistedTag(tag string) bool {
	_, ok := lx.blacklist[strings.ToLower(tag)]
	return ok
}

// StripLabel removes one leading label such as "Breaking:".
func (lx *Lexicon) StripLabel(title string) string {
	if lx.prefix == nil {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(lx.prefix.ReplaceAllString(title, ""))
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}
