package tokenizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"In the beginning God created the heaven and the earth.", "beginning god created heaven earth."},
		{"  LOVE   joy\tpeace\n", "love joy peace"},
		{"the and of", ""},
		{"", ""},
		// stop-words are matched before punctuation is considered
		{"The, end", "the, end"},
		{"You're welcome", "welcome"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestEnglishListSize(t *testing.T) {
	set := English()
	assert.Len(t, set, 179)
	set["extra"] = struct{}{}
	assert.False(t, English().Contains("extra"), "English must return a copy")
}

func TestCustomStopWords(t *testing.T) {
	n := NewNormalizer(StopWords{"lord": {}})
	assert.Equal(t, "the is my shepherd", n.Normalize("The LORD is my shepherd"))
}

func TestLoadStopWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nUnto\n\n  thee \n"), 0o644))

	set, err := LoadStopWords(path)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, set.Contains("unto"))
	assert.True(t, set.Contains("thee"))

	_, err = LoadStopWords(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	texts := make([]string, 5000)
	for i := range texts {
		texts[i] = fmt.Sprintf("The verse %d of the book", i)
	}
	out, err := NewNormalizer(nil).NormalizeAll(context.Background(), texts, 7)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, got := range out {
		assert.Equal(t, fmt.Sprintf("verse %d book", i), got)
	}
}

func TestNormalizeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNormalizer(nil).NormalizeAll(ctx, []string{"a b c"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"beginning", "god", "created", "earth."}, Terms("beginning god created earth.", PatternWhitespace))
	assert.Equal(t, []string{"beginning", "god", "created", "earth"}, Terms("beginning god created earth.", PatternWord))
	assert.Equal(t, []string{"lord's", "a", "day"}, Terms("lord's a day", PatternWhitespace))
	assert.Equal(t, []string{"lord", "day"}, Terms("lord's a day", PatternWord))
	assert.Empty(t, Terms("", PatternWhitespace))
}

func TestTermsWordClass(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single characters dropped", "a b i go", []string{"go"}},
		{"digits kept", "chapter 12 verse 3", []string{"chapter", "12", "verse"}},
		{"underscore joins", "snake_case x_", []string{"snake_case", "x_"}},
		{"hyphen splits", "well-known", []string{"well", "known"}},
		{"non-ascii letters", "café naïve", []string{"café", "naïve"}},
		{"only punctuation", "... !! ;", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.in, PatternWord)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("word")
	require.NoError(t, err)
	assert.Equal(t, PatternWord, p)
	p, err = ParsePattern("")
	require.NoError(t, err)
	assert.Equal(t, PatternWhitespace, p)
	_, err = ParsePattern("ngram")
	assert.Error(t, err)
}

func BenchmarkNormalize(b *testing.B) {
	text := "And God said, Let there be light: and there was light. And God saw the light, that it was good"
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
