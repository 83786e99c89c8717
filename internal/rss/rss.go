package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/models"
)

const (
	descriptionLimit = 300
	userAgent        = "newspulse/1.0 (+https://github.com/deusflow/newspulse)"
)

// Fetcher downloads one feed and converts its items into articles.
type Fetcher struct {
	parser *gofeed.Parser
	maxAge time.Duration
	now    func() time.Time
}

// NewFetcher returns a Fetcher that drops items older than maxAge. A zero
// maxAge keeps everything with a valid date.
func NewFetcher(client *http.Client, maxAge time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = userAgent
	return &Fetcher{parser: p, maxAge: maxAge, now: time.Now}
}

// Fetch parses the feed of src. Items without a link or a usable date are
// skipped, so a feed never contributes undated headlines.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]models.Article, error) {
	feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.Name, err)
	}

	now := f.now()
	articles := make([]models.Article, 0, len(feed.Items))
	skipped := 0
	for _, item := range feed.Items {
		a, ok := f.convert(item, src, now)
		if !ok {
			skipped++
			continue
		}
		articles = append(articles, a)
	}
	logger.Debug("Loaded feed", "source", src.Name, "items", len(articles), "skipped", skipped)
	return articles, nil
}

func (f *Fetcher) convert(item *gofeed.Item, src Source, now time.Time) (models.Article, bool) {
	link := strings.TrimSpace(item.Link)
	title := strings.Join(strings.Fields(item.Title), " ")
	if link == "" || title == "" {
		return models.Article{}, false
	}

	var pub time.Time
	switch {
	case item.PublishedParsed != nil:
		pub = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		pub = *item.UpdatedParsed
	default:
		return models.Article{}, false
	}
	if pub.IsZero() || pub.Year() < 1971 {
		return models.Article{}, false
	}
	if f.maxAge > 0 && pub.Before(now.Add(-f.maxAge)) {
		return models.Article{}, false
	}

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	return models.Article{
		Title:       title,
		Link:        link,
		PublishedAt: pub.UTC(),
		Description: truncate(plainText(desc), descriptionLimit),
		Source:      src.Name,
	}, true
}

// truncate cuts s to at most n runes, backing off to the last space when one
// falls in the second half of the cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	cut := string(runes[:n-3])
	if sp := strings.LastIndexByte(cut, ' '); sp > len(cut)/2 {
		cut = cut[:sp]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

// plainText renders an HTML fragment as text with entities decoded and
// whitespace collapsed.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	doc.Find("p, br, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
