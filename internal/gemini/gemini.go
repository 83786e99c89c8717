package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/newspulse/internal/logger"
)

// DefaultModel is used when the config leaves the model empty.
const DefaultModel = "gemini-1.5-flash"

const maxChars = 6000

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Summary is the parsed model answer.
type Summary struct {
	Gist   string   `json:"gist"`
	Points []string `json:"points"`
}

// Text renders the summary as plain text.
func (s *Summary) Text() string {
	var b strings.Builder
	b.WriteString(s.Gist)
	for _, p := range s.Points {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}

type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

type Client struct {
	client *genai.Client
	gen    generator
}

type genaiGenerator struct {
	model *genai.GenerativeModel
}

func (g genaiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	gm := client.GenerativeModel(model)
	gm.SetTemperature(0.2)
	return &Client{client: client, gen: genaiGenerator{model: gm}}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Summarize asks the model for a one-line gist and up to five key points.
func (c *Client) Summarize(ctx context.Context, title, content string) (*Summary, error) {
	prompt := buildPrompt(title, prepareContent(content))
	response, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseResponse(response)
}

// prepareContent collapses whitespace and cuts over-long input on a
// sentence boundary.
func prepareContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	runes := []rune(content)
	trimmed := string(runes[:maxChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

func buildPrompt(title, content string) string {
	return fmt.Sprintf(`Summarize this news article for a busy reader.

ARTICLE:
Title: %s
Content: %s

RULES:
Stay neutral and factual. Do not add facts that are not in the article.
Keep names of people, brands and organizations as written.
Avoid filler such as "This article is about".

Answer strictly in this format:

GIST: <one sentence, at most 30 words>
POINTS:
- <key point>
- <key point>
- <up to five key points>
`, title, content)
}

var (
	gistLabel   = regexp.MustCompile(`(?i)^\**\s*(GIST|SUMMARY)\s*\**\s*:\s*\**\s*`)
	pointsLabel = regexp.MustCompile(`(?i)^\**\s*(POINTS|KEY POINTS)\s*\**\s*:\s*\**\s*`)
	bullet      = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

func parseResponse(response string) (*Summary, error) {
	var gist strings.Builder
	var points []string
	section := ""

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case gistLabel.MatchString(line):
			section = "gist"
			line = gistLabel.ReplaceAllString(line, "")
		case pointsLabel.MatchString(line):
			section = "points"
			line = pointsLabel.ReplaceAllString(line, "")
		}
		if line == "" {
			continue
		}

		switch section {
		case "gist":
			if gist.Len() > 0 {
				gist.WriteString(" ")
			}
			gist.WriteString(line)
		case "points":
			if bullet.MatchString(line) || len(points) == 0 {
				points = append(points, bullet.ReplaceAllString(line, ""))
			} else {
				points[len(points)-1] += " " + line
			}
		}
	}

	summary := &Summary{Gist: strings.TrimSpace(gist.String()), Points: points}
	if len(summary.Points) > 5 {
		summary.Points = summary.Points[:5]
	}

	if summary.Gist == "" {
		text := strings.Join(strings.Fields(response), " ")
		if text == "" {
			return nil, ErrEmptyResponse
		}
		logger.Warn("Unlabelled summarizer response, using raw text", "chars", len(text))
		summary.Gist = text
	}
	return summary, nil
}
