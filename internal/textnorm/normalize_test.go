package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStripsLabelPrefix(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"Breaking: Markets tumble in Tokyo", []string{"markets", "drop", "tokyo"}},
		{"LIVE : markets tumble in Tokyo", []string{"markets", "drop", "tokyo"}},
		{"Markets tumble: live coverage", []string{"markets", "drop", "coverage"}},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.title).Tokens)
		})
	}
}

func TestNormalizeEntities(t *testing.T) {
	got := Normalize("The Fed and ECB meet in Frankfurt as US stocks rise")
	assert.Equal(t, []string{"fed", "ecb", "frankfurt", "us"}, got.Entities)
}

func TestNormalizeEntitiesIgnoreLowercaseAndSingleLetters(t *testing.T) {
	got := Normalize("A storm hits iPhone maker in X city")
	assert.Empty(t, got.Entities)
}

func TestNormalizeCanonicalizes(t *testing.T) {
	a := Normalize("Oil prices plunge after OPEC summit")
	b := Normalize("Oil prices fell after OPEC talks")
	assert.Equal(t, a.Tokens, b.Tokens)
	assert.Equal(t, []string{"oil", "prices", "drop", "opec", "meet"}, a.Tokens)
}

func TestNormalizeKeepsFirstFifteenWords(t *testing.T) {
	got := Normalize("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa quebec romeo sierra tango")
	assert.Len(t, got.Tokens, 15)
	assert.Equal(t, "oscar", got.Tokens[14])
}

func TestNormalizeSoftStopwordsOnlyForLongTitles(t *testing.T) {
	short := Normalize("Weekly recap markets")
	assert.Equal(t, []string{"weekly", "recap", "markets"}, short.Tokens)

	long := Normalize("Weekly recap markets bonds currencies gold silver")
	assert.NotContains(t, long.Tokens, "recap")
	assert.Equal(t, []string{"weekly", "markets", "bonds", "currencies", "gold", "silver"}, long.Tokens)
}

func TestNormalizeDropsShortAndStopTokens(t *testing.T) {
	got := Normalize("A b of the UK & EU in 5 days")
	assert.Equal(t, []string{"uk", "eu", "days"}, got.Tokens)
}

func TestNormalizeDegenerateTitles(t *testing.T) {
	assert.Empty(t, Normalize("").Tokens)
	assert.Empty(t, Normalize("!!! ??").Tokens)
	assert.Empty(t, Normalize("The and of").Tokens)
}

func TestCompileRejectsConflictingCanonicalForms(t *testing.T) {
	_, err := Compile(LexiconFile{Canonical: map[string][]string{
		"drop": {"fall"},
		"rise": {"fall"},
	}})
	require.Error(t, err)
}

func TestLoadLexiconFromYAML(t *testing.T) {
	lx, err := LoadLexicon(strings.NewReader(`
label_prefixes: [flash]
hard_stopwords: [the]
canonical:
  go: [went, gone]
`))
	require.NoError(t, err)
	n := New(lx)
	assert.Equal(t, []string{"team", "go", "home"}, n.Normalize("FLASH: the team went home").Tokens)
	assert.False(t, lx.IsBlacklistedTag("Monday"))
	assert.True(t, Default().IsBlacklistedTag("monday"))
}
