// Package rss loads the feed source list and fetches feeds into articles.
package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

// Source is one configured feed.
type Source struct {
	Name    string `yaml:"name" json:"name"`
	URL     string `yaml:"url" json:"url"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9]`)

// ID is the cache slot name of the source.
func (s Source) ID() string {
	return nonIDChars.ReplaceAllString(strings.ToLower(s.Name), "_")
}

// SourcesConfig is the YAML config structure
//
//	sources:
//	  - name: Reuters
//	    url: https://...
//	    enabled: true
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// ErrUnknownSource is returned by edits that name a missing source.
var ErrUnknownSource = errors.New("rss: unknown source")

// LoadSources reads the feed list from a YAML file.
func LoadSources(path string) (*SourcesConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the list back atomically.
func (c *SourcesConfig) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write sources: %w", err)
	}
	return os.Rename(tmp, path)
}

// Validate checks for empty fields and clashing IDs.
func (c *SourcesConfig) Validate() error {
	seen := make(map[string]string)
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("source %d has no name", i)
		}
		if _, err := url.ParseRequestURI(s.URL); err != nil {
			return fmt.Errorf("source %q: invalid url: %w", s.Name, err)
		}
		if prev, ok := seen[s.ID()]; ok {
			return fmt.Errorf("sources %q and %q share id %q", prev, s.Name, s.ID())
		}
		seen[s.ID()] = s.Name
	}
	return nil
}

// Enabled returns the enabled sources in configured order.
func (c *SourcesConfig) Enabled() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the source with the given ID.
func (c *SourcesConfig) Find(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID() == id {
			return s, true
		}
	}
	return Source{}, false
}

func (c *SourcesConfig) index(id string) int {
	for i, s := range c.Sources {
		if s.ID() == id {
			return i
		}
	}
	return -1
}

// Add appends an enabled source.
func (c *SourcesConfig) Add(name, feedURL string) (Source, error) {
	s := Source{Name: strings.TrimSpace(name), URL: strings.TrimSpace(feedURL), Enabled: true}
	next := SourcesConfig{Sources: append(append([]Source{}, c.Sources...), s)}
	if err := next.Validate(); err != nil {
		return Source{}, err
	}
	c.Sources = next.Sources
	return s, nil
}

// Remove deletes a source.
func (c *SourcesConfig) Remove(id string) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	c.Sources = append(c.Sources[:i], c.Sources[i+1:]...)
	return nil
}

// SetEnabled toggles a source on or off.
func (c *SourcesConfig) SetEnabled(id string, enabled bool) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	c.Sources[i].Enabled = enabled
	return nil
}

// Move shifts a source by delta positions, clamped to the list bounds.
// Order matters: it decides which source owns a link seen in several feeds.
func (c *SourcesConfig) Move(id string, delta int) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	j := min(max(i+delta, 0), len(c.Sources)-1)
	s := c.Sources[i]
	c.Sources = append(c.Sources[:i], c.Sources[i+1:]...)
	c.Sources = append(c.Sources[:j], append([]Source{s}, c.Sources[j:]...)...)
	return nil
}

// FeedKind is the detected syndication format.
type FeedKind string

const (
	KindRSS  FeedKind = "RSS"
	KindAtom FeedKind = "ATOM"
	KindJSON FeedKind = "JSON"
)

// ErrNotAFeed is returned by Validate when the document is not a feed.
var ErrNotAFeed = errors.New("rss: not a feed")

// ValidateURL downloads feedURL and reports its syndication format.
func ValidateURL(ctx context.Context, client *http.Client, feedURL string) (FeedKind, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", feedURL, resp.StatusCode)
	}

	switch gofeed.DetectFeedType(io.LimitReader(resp.Body, 1<<20)) {
	case gofeed.FeedTypeRSS:
		return KindRSS, nil
	case gofeed.FeedTypeAtom:
		return KindAtom, nil
	case gofeed.FeedTypeJSON:
		return KindJSON, nil
	default:
		return "", ErrNotAFeed
	}
}
