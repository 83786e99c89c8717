package telegram

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
)

// MaxMessageLen is the Telegram limit for one text message.
const MaxMessageLen = 4096

const defaultBaseURL = "https://api.telegram.org"

// Client posts messages to one chat or channel.
type Client struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
	retry   retry.RetryConfig
}

// NewClient returns a Client with a 30 second request timeout.
func NewClient(token, chatID string) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

// SendMessage sends text message to Telegram chat/channel with retry logic.
// Text longer than MaxMessageLen is split on line boundaries.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	for i, part := range Split(text, MaxMessageLen) {
		err := retry.WithRetry(ctx, c.retry, func(ctx context.Context) error {
			return c.sendOnce(ctx, part)
		})
		if err != nil {
			return fmt.Errorf("send part %d: %w", i+1, err)
		}
	}
	logger.Info("Message sent to Telegram", "chat", c.chatID, "chars", len(text))
	return nil
}

// sendOnce does one try to send message
func (c *Client) sendOnce(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("error make JSON: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("Failed to close response body", "error", err)
		}
	}(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
}

// SendDigest formats and sends the digest of a pool.
func (c *Client) SendDigest(ctx context.Context, pool models.ClusterPool, n int, now time.Time) error {
	text := FormatDigest(pool, n, now)
	if text == "" {
		logger.Info("Digest skipped, no stories")
		return nil
	}
	if err := c.SendMessage(ctx, text); err != nil {
		return err
	}
	metrics.Global.IncrementDigestsSent()
	return nil
}

// FormatDigest renders the n entities covered by the most sources, largest
// first, as Telegram HTML. Ties keep pool order.
func FormatDigest(pool models.ClusterPool, n int, now time.Time) string {
	if len(pool) == 0 || n <= 0 {
		return ""
	}
	ranked := make(models.ClusterPool, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Members()) > len(ranked[j].Members())
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Top stories</b> · %s\n", now.Format("Mon 2 Jan 15:04"))
	for i, e := range ranked {
		fmt.Fprintf(&b, "\n%d. <a href=\"%s\">%s</a>", i+1, html.EscapeString(e.Link()), html.EscapeString(e.Title()))
		members := e.Members()
		if len(members) > 1 {
			sources := e.Cluster().Sources()
			fmt.Fprintf(&b, "\n<i>%d reports: %s</i>", len(members), html.EscapeString(strings.Join(sources, ", ")))
		} else {
			fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(e.Source()))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Split breaks text into chunks of at most limit bytes, preferring line
// boundaries.
func Split(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			cut := limit
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
