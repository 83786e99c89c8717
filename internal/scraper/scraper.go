package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/newspulse/internal/logger"
)

// maxBodySize caps how much HTML is read from an untrusted page.
const maxBodySize = 10 * 1024 * 1024

// minContent is the shortest selector result accepted before falling back
// to readability.
const minContent = 200

// ErrNoContent is returned when neither extraction pass finds article text.
var ErrNoContent = errors.New("scraper: no article content")

// ArticleContent is full article content
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

// siteSelectors lists paragraph selectors for hosts whose markup is known.
// Hosts match by suffix.
var siteSelectors = map[string][]string{
	"bbc.co.uk":       {"[data-component=text-block] p", "article p"},
	"bbc.com":         {"[data-component=text-block] p", "article p"},
	"theguardian.com": {"#maincontent p", ".article-body-commercial-selector p", "article p"},
	"reuters.com":     {"[data-testid^=paragraph-]", "article p"},
	"apnews.com":      {".RichTextStoryBody p", "article p"},
	"npr.org":         {"#storytext p", "article p"},
	"aljazeera.com":   {".wysiwyg p", "article p"},
}

var genericSelectors = []string{
	"article p",
	".article p",
	".content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	".text p",
}

// Extractor downloads pages and pulls out the article text.
type Extractor struct {
	client    *http.Client
	userAgent string
}

// New returns an Extractor. A nil client gets a 15 second timeout.
func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Extractor{client: client, userAgent: "newspulse/1.0 (+https://github.com/deusflow/newspulse)"}
}

// Extract gets full text of article by URL. Known sites use their selectors,
// anything else or a thin result goes through readability.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*ArticleContent, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid article url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("error reading page: %w", err)
	}
	return ExtractHTML(body, u)
}

// ExtractHTML runs both extraction passes over an already downloaded page.
func ExtractHTML(body []byte, u *url.URL) (*ArticleContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	title := extractTitle(doc)
	content := cleanContent(paragraphs(doc, selectorsFor(u.Hostname())))

	if len(content) < minContent {
		article, err := readability.FromReader(bytes.NewReader(body), u)
		if err != nil {
			logger.Debug("Readability failed", "url", u.String(), "error", err)
		} else {
			if text := cleanContent(article.TextContent); len(text) > len(content) {
				content = text
			}
			if title == "" {
				title = strings.TrimSpace(article.Title)
			}
		}
	}

	if content == "" {
		return nil, ErrNoContent
	}
	return &ArticleContent{Title: title, Content: content, URL: u.String()}, nil
}

func selectorsFor(host string) []string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for suffix, sel := range siteSelectors {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return slices.Concat(sel, genericSelectors)
		}
	}
	return genericSelectors
}

// paragraphs returns the text of the first selector that yields at least
// three substantial paragraphs, or the best partial match.
func paragraphs(doc *goquery.Document, selectors []string) string {
	var best []string
	for _, selector := range selectors {
		var found []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 20 {
				found = append(found, text)
			}
		})
		if len(found) > len(best) {
			best = found
		}
		if len(best) >= 3 {
			break
		}
	}
	return strings.Join(best, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	for _, selector := range []string{"h1", ".article-title", ".headline", ".entry-title", "title"} {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

var junkIndicators = []string{
	"cookie", "gdpr", "advertisement", "sign up for", "newsletter",
	"subscribe", "read more", "click here", "follow us", "share this",
	"all rights reserved",
}

// cleanContent drops boilerplate lines, collapses whitespace and trims the
// text to whole paragraphs under the summarizer input limit.
func cleanContent(content string) string {
	var kept []string
	for _, p := range strings.Split(content, "\n") {
		p = strings.Join(strings.Fields(p), " ")
		if len(p) < 30 {
			continue
		}
		lower := strings.ToLower(p)
		junk := false
		for _, ind := range junkIndicators {
			if strings.Contains(lower, ind) {
				junk = true
				break
			}
		}
		if !junk {
			kept = append(kept, p)
		}
	}

	var out []string
	total := 0
	for _, p := range kept {
		if total+len(p) > 6000 && len(out) > 0 {
			break
		}
		out = append(out, p)
		total += len(p) + 2
	}
	return strings.Join(out, "\n\n")
}
