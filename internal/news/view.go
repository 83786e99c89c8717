package news

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/models"
)

// DefaultPerPage is the page size when ViewOptions leaves it unset.
const DefaultPerPage = 25

// ViewOptions shapes a pool for display.
type ViewOptions struct {
	UnreadOnly    bool
	Search        string
	ClustersFirst bool
	Page          int
	PerPage       int
}

// Item is one entity decorated with the reader's state.
type Item struct {
	Entity     models.Entity `json:"entity"`
	Read       bool          `json:"read"`
	Bookmarked bool          `json:"bookmarked"`
	Favorite   bool          `json:"favorite"`
	Fresh      bool          `json:"fresh"`
}

// Page is a slice of a filtered pool.
type Page struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

// View filters, orders and pages pool. An entity counts as read when its
// primary link is in the read history.
func (s *Service) View(ctx context.Context, pool models.ClusterPool, opts ViewOptions) (Page, error) {
	read, err := s.lib.Links(ctx, library.Read)
	if err != nil {
		return Page{}, err
	}
	bookmarks, err := s.lib.Links(ctx, library.Bookmarks)
	if err != nil {
		return Page{}, err
	}
	favorites, err := s.lib.Links(ctx, library.Favorites)
	if err != nil {
		return Page{}, err
	}

	match := ParseQuery(opts.Search)
	now := s.now()
	items := make([]Item, 0, len(pool))
	for _, e := range pool {
		_, isRead := read[e.Link()]
		if opts.UnreadOnly && isRead {
			continue
		}
		if !match.Matches(e.Title()) {
			continue
		}
		_, bm := bookmarks[e.Link()]
		_, fav := favorites[e.Link()]
		items = append(items, Item{
			Entity:     e,
			Read:       isRead,
			Bookmarked: bm,
			Favorite:   fav,
			Fresh:      IsFresh(e.Date(), now),
		})
	}

	if opts.ClustersFirst {
		sort.SliceStable(items, func(i, j int) bool {
			ci, cj := items[i].Entity.IsCluster(), items[j].Entity.IsCluster()
			if ci != cj {
				return ci
			}
			return items[i].Entity.Date().After(items[j].Entity.Date())
		})
	}

	return paginate(items, opts.Page, opts.PerPage), nil
}

func paginate(items []Item, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	out := Page{Total: len(items), Page: page, PerPage: perPage, Items: []Item{}}
	start := (page - 1) * perPage
	if start >= len(items) {
		return out
	}
	end := min(start+perPage, len(items))
	out.Items = items[start:end]
	return out
}

// IsFresh reports whether an item published at t is still new at now: 12
// hours before local noon, 6 hours after.
func IsFresh(t, now time.Time) bool {
	window := 12 * time.Hour
	if now.Hour() >= 12 {
		window = 6 * time.Hour
	}
	return now.Sub(t) < window
}

// Query is a parsed search string. Every include term must match and no
// exclude term may match. Terms match whole words, optionally pluralized.
type Query struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// ParseQuery splits a search into terms; a leading "-" marks an exclusion.
func ParseQuery(search string) Query {
	var q Query
	for _, term := range strings.Fields(strings.ToLower(search)) {
		target := &q.include
		if strings.HasPrefix(term, "-") {
			term = term[1:]
			target = &q.exclude
		}
		if term == "" {
			continue
		}
		*target = append(*target, regexp.MustCompile(`(?i)(?:^|\b|\s)`+regexp.QuoteMeta(term)+`s?(?:\b|\s|$)`))
	}
	return q
}

// Matches applies the query to a title.
func (q Query) Matches(title string) bool {
	for _, re := range q.include {
		if !re.MatchString(title) {
			return false
		}
	}
	for _, re := range q.exclude {
		if re.MatchString(title) {
			return false
		}
	}
	return true
}
