// Package library keeps the user's link-keyed sets: read history, bookmarks
// (read later) and favorites.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/storage"
)

// List names one of the saved sets.
type List string

const (
	Read      List = "read"
	Bookmarks List = "bookmarks"
	Favorites List = "favorites"
)

// ErrUnknownList is returned for a list name the library does not keep.
var ErrUnknownList = errors.New("library: unknown list")

// ParseList accepts a list name in any case; "later" is an alias of bookmarks.
func ParseList(s string) (List, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "bookmarks", "bookmark", "later":
		return Bookmarks, nil
	case "favorites", "favorite", "favourites":
		return Favorites, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownList, s)
}

// Entry is a saved article snapshot.
type Entry struct {
	models.Article
	SavedAt time.Time `json:"saved_at"`
}

// Library persists the sets in a blob store, one JSON array per list in
// insertion order. Adding an existing link is a no-op.
type Library struct {
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time
}

// New returns a Library backed by store.
func New(store storage.Store) *Library {
	return &Library{store: store, now: time.Now}
}

func key(l List) string { return "library/" + string(l) }

func check(l List) error {
	switch l {
	case Read, Bookmarks, Favorites:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownList, l)
}

// Entries returns a list in insertion order.
func (lib *Library) Entries(ctx context.Context, l List) ([]Entry, error) {
	if err := check(l); err != nil {
		return nil, err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	return lib.load(ctx, l)
}

// Links returns the set of links in a list.
func (lib *Library) Links(ctx context.Context, l List) (map[string]struct{}, error) {
	entries, err := lib.Entries(ctx, l)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Link] = struct{}{}
	}
	return set, nil
}

// Has reports whether link is in a list.
func (lib *Library) Has(ctx context.Context, l List, link string) (bool, error) {
	set, err := lib.Links(ctx, l)
	if err != nil {
		return false, err
	}
	_, ok := set[link]
	return ok, nil
}

// Add stores snapshots of articles. Links already present keep their
// original snapshot.
func (lib *Library) Add(ctx context.Context, l List, articles ...models.Article) error {
	if err := check(l); err != nil {
		return err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()

	entries, err := lib.load(ctx, l)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Link] = struct{}{}
	}
	added := false
	at := lib.now()
	for _, a := range articles {
		if a.Link == "" {
			continue
		}
		if _, dup := seen[a.Link]; dup {
			continue
		}
		seen[a.Link] = struct{}{}
		entries = append(entries, Entry{Article: a, SavedAt: at})
		added = true
	}
	if !added {
		return nil
	}
	return lib.save(ctx, l, entries)
}

// Remove drops links from a list. Missing links are ignored.
func (lib *Library) Remove(ctx context.Context, l List, links ...string) error {
	if err := check(l); err != nil {
		return err
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()

	entries, err := lib.load(ctx, l)
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(links))
	for _, link := range links {
		drop[link] = struct{}{}
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := drop[e.Link]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return lib.save(ctx, l, kept)
}

// Toggle adds the article when absent and removes it when present. It
// returns whether the link is in the list afterwards.
func (lib *Library) Toggle(ctx context.Context, l List, a models.Article) (bool, error) {
	has, err := lib.Has(ctx, l, a.Link)
	if err != nil {
		return false, err
	}
	if has {
		return false, lib.Remove(ctx, l, a.Link)
	}
	return true, lib.Add(ctx, l, a)
}

// MarkRead records links as read.
func (lib *Library) MarkRead(ctx context.Context, links ...string) error {
	articles := make([]models.Article, 0, len(links))
	for _, link := range links {
		articles = append(articles, models.Article{Link: link})
	}
	return lib.Add(ctx, Read, articles...)
}

// MarkAllRead records every link of a pool as read, cluster members included.
func (lib *Library) MarkAllRead(ctx context.Context, pool models.ClusterPool) error {
	var links []string
	for _, e := range pool {
		links = append(links, e.Links()...)
	}
	return lib.MarkRead(ctx, links...)
}

func (lib *Library) load(ctx context.Context, l List) ([]Entry, error) {
	data, err := lib.store.Get(ctx, key(l))
	if errors.Is(err, storage.ErrNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		metrics.CacheLookups.WithLabelValues("library", "corrupt").Inc()
		logger.Warn("Corrupted library list, starting empty", "list", string(l), "error", err)
		return []Entry{}, nil
	}
	return entries, nil
}

func (lib *Library) save(ctx context.Context, l List, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l, err)
	}
	if err := lib.store.Put(ctx, key(l), data, lib.now()); err != nil {
		return fmt.Errorf("write %s: %w", l, err)
	}
	return nil
}
