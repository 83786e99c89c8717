package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGen struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeGen) generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestSummarizeParsesLabelledAnswer(t *testing.T) {
	gen := &fakeGen{reply: `GIST: The council approved a transit plan
that was debated for months.
POINTS:
- Commute times should fall.
- Costs were not reviewed
  independently.
2) Work starts next spring.`}
	c := &Client{gen: gen}

	s, err := c.Summarize(context.Background(), "Transit plan", "Body   text\n\nhere.")
	require.NoError(t, err)
	assert.Equal(t, "The council approved a transit plan that was debated for months.", s.Gist)
	assert.Equal(t, []string{
		"Commute times should fall.",
		"Costs were not reviewed independently.",
		"Work starts next spring.",
	}, s.Points)
	assert.Contains(t, gen.prompt, "Title: Transit plan")
	assert.Contains(t, gen.prompt, "Content: Body text here.")
}

func TestParseMarkdownLabels(t *testing.T) {
	s, err := parseResponse("**GIST:** Short.\n**KEY POINTS:**\n* one\n* two")
	require.NoError(t, err)
	assert.Equal(t, "Short.", s.Gist)
	assert.Equal(t, []string{"one", "two"}, s.Points)
}

func TestParseUnlabelledFallsBackToRawText(t *testing.T) {
	s, err := parseResponse("Just a plain paragraph\nwith two lines.")
	require.NoError(t, err)
	assert.Equal(t, "Just a plain paragraph with two lines.", s.Gist)
	assert.Empty(t, s.Points)

	_, err = parseResponse("  \n ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestPointsCappedAtFive(t *testing.T) {
	s, err := parseResponse("GIST: g\nPOINTS:\n- a\n- b\n- c\n- d\n- e\n- f")
	require.NoError(t, err)
	assert.Len(t, s.Points, 5)
	assert.Equal(t, "g\n- a\n- b\n- c\n- d\n- e", s.Text())
}

func TestGeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("quota")
	c := &Client{gen: &fakeGen{err: boom}}
	_, err := c.Summarize(context.Background(), "t", "c")
	assert.ErrorIs(t, err, boom)
}

func TestPrepareContentTruncates(t *testing.T) {
	long := strings.Repeat("Sentence number one is here. ", 400)
	out := prepareContent(long)
	assert.True(t, strings.HasSuffix(out, "[TRUNCATED]"))
	assert.LessOrEqual(t, len([]rune(out)), maxChars+len("\n[TRUNCATED]"))
	assert.Equal(t, "a b", prepareContent("  a \n\t b "))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "")
	assert.Error(t, err)
}
