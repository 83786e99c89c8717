// Package tags finds trending names and phrases in a headline pool and keeps
// the user's include/exclude tag lists.
package tags

import (
	"regexp"
	"sort"
	"strings"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/textnorm"
)

// capitalRun matches one or more consecutive capitalized words. Internal
// periods cover abbreviations (U.S.) and apostrophes cover possessives.
var capitalRun = regexp.MustCompile(`(?:\p{Lu}[\p{Ll}\p{N}]*\.)*\p{Lu}[\p{Ll}\p{N}.']+(?:\s+(?:\p{Lu}[\p{Ll}\p{N}]*\.)*\p{Lu}[\p{Ll}\p{N}.']+)*`)

// Config bounds the extractor output.
type Config struct {
	MinCount int `koanf:"min_count"`
	Limit    int `koanf:"limit"`
}

// DefaultConfig returns the shipped limits.
func DefaultConfig() Config {
	return Config{MinCount: 3, Limit: 12}
}

// Options is the per-call input of Extract.
type Options struct {
	Include    []string
	Exclude    []string
	UnreadOnly bool
	IsRead     func(link string) bool
}

// Extractor counts trending tags.
type Extractor struct {
	lx  *textnorm.Lexicon
	cfg Config
}

// NewExtractor uses lx for the static blacklist; nil means the embedded lexicon.
func NewExtractor(lx *textnorm.Lexicon, cfg Config) *Extractor {
	if lx == nil {
		lx = textnorm.Default()
	}
	d := DefaultConfig()
	if cfg.MinCount <= 0 {
		cfg.MinCount = d.MinCount
	}
	if cfg.Limit <= 0 {
		cfg.Limit = d.Limit
	}
	return &Extractor{lx: lx, cfg: cfg}
}

// HeatThreshold is the count at which a tag is flagged hot for a pool of the
// given entity count.
func HeatThreshold(poolSize int) int {
	if poolSize < 150 {
		return 4
	}
	return 8
}

type tally struct {
	entry models.TagEntry
	seen  map[string]struct{}
	order int
}

type counter struct {
	byKey map[string]*tally
	next  int
}

func (c *counter) add(display, link string) {
	key := strings.ToLower(display)
	t, ok := c.byKey[key]
	if !ok {
		t = &tally{entry: models.TagEntry{Tag: display}, seen: make(map[string]struct{}), order: c.next}
		c.next++
		c.byKey[key] = t
	}
	t.entry.Count++
	if _, dup := t.seen[link]; !dup {
		t.seen[link] = struct{}{}
		t.entry.Links = append(t.entry.Links, link)
	}
}

// Extract scans the primary title of every entity in pool. Inclusion phrases
// are matched first and removed from the title, then capitalized runs are
// counted under a case-insensitive, plural-folded key. An entity counts at
// most once per tag.
func (e *Extractor) Extract(pool models.ClusterPool, opts Options) []models.TagEntry {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, w := range opts.Exclude {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			exclude[w] = struct{}{}
		}
	}
	include := compilePhrases(opts.Include)

	c := &counter{byKey: make(map[string]*tally)}
	for _, ent := range pool {
		link := ent.Link()
		if opts.UnreadOnly && opts.IsRead != nil && opts.IsRead(link) {
			continue
		}

		work := ent.Title()
		counted := make(map[string]struct{})
		for _, p := range include {
			if !p.re.MatchString(work) {
				continue
			}
			key := strings.ToLower(p.phrase)
			if _, dup := counted[key]; !dup {
				c.add(p.phrase, link)
				counted[key] = struct{}{}
			}
			work = p.re.ReplaceAllString(work, " ")
		}

		for _, run := range capitalRun.FindAllString(work, -1) {
			for _, seg := range e.splitRun(run, exclude) {
				e.count(c, counted, seg, link, exclude)
			}
		}
	}

	threshold := HeatThreshold(len(pool))
	out := make([]*tally, 0, len(c.byKey))
	for _, t := range c.byKey {
		if t.entry.Count >= e.cfg.MinCount {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].entry.Count != out[j].entry.Count {
			return out[i].entry.Count > out[j].entry.Count
		}
		return out[i].order < out[j].order
	})
	if len(out) > e.cfg.Limit {
		out = out[:e.cfg.Limit]
	}

	entries := make([]models.TagEntry, 0, len(out))
	for _, t := range out {
		t.entry.Hot = t.entry.Count >= threshold
		entries = append(entries, t.entry)
	}
	return entries
}

// splitRun breaks a capitalized run at every blacklisted or excluded word, so
// "The Senators" yields "Senators" and "Why Senator Smith" yields
// "Senator Smith".
func (e *Extractor) splitRun(run string, exclude map[string]struct{}) []string {
	var (
		segs []string
		cur  []string
	)
	flush := func() {
		if len(cur) > 0 {
			segs = append(segs, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, w := range strings.Fields(run) {
		bare := cleanRun(w)
		_, ex := exclude[strings.ToLower(bare)]
		if ex || e.lx.IsBlacklistedTag(bare) {
			flush()
			continue
		}
		cur = append(cur, w)
	}
	flush()
	return segs
}

func (e *Extractor) count(c *counter, counted map[string]struct{}, seg, link string, exclude map[string]struct{}) {
	clean := cleanRun(seg)
	if len([]rune(clean)) < 3 || e.lx.IsBlacklistedTag(clean) {
		return
	}
	if _, ex := exclude[strings.ToLower(clean)]; ex {
		return
	}
	root := Singular(clean)
	key := strings.ToLower(root)
	if _, dup := counted[key]; dup {
		return
	}
	counted[key] = struct{}{}
	c.add(root, link)
}

type phrase struct {
	phrase string
	re     *regexp.Regexp
}

func compilePhrases(list []string) []phrase {
	out := make([]phrase, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, phrase{phrase: p, re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p))})
	}
	return out
}

func cleanRun(run string) string {
	s := strings.TrimSpace(run)
	s = strings.TrimRight(s, ".:,;")
	if strings.HasSuffix(strings.ToLower(s), "'s") {
		s = s[:len(s)-2]
	}
	return s
}

// Singular folds a trailing plural: "-ies" becomes "-y", a single trailing
// "s" is dropped, "-ss" is kept. Words of three runes or fewer are untouched.
func Singular(w string) string {
	lower := strings.ToLower(w)
	if len([]rune(w)) <= 3 || !strings.HasSuffix(lower, "s") {
		return w
	}
	switch {
	case strings.HasSuffix(lower, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(lower, "ss"):
		return w
	default:
		return w[:len(w)-1]
	}
}
