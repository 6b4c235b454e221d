// Package tokenizer normalises verse text for the term-weight indexer. It
// lower-cases input, splits on whitespace, and removes stop-words. Terms
// then splits normalised text into the tokens that become vocabulary
// columns.
package tokenizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/parallel"
)

// Pattern selects how normalised text is split into terms.
type Pattern int

const (
	// PatternWhitespace treats every whitespace-delimited token as a term.
	PatternWhitespace Pattern = iota
	// PatternWord keeps runs of two or more letters, digits or underscores,
	// discarding punctuation. The class approximates a Unicode \w\w+ word
	// match; runs containing combining marks or connector punctuation other
	// than '_' split differently, so token parity with such matchers is not
	// exact for non-ASCII text.
	PatternWord
)

func (p Pattern) String() string {
	switch p {
	case PatternWhitespace:
		return "whitespace"
	case PatternWord:
		return "word"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

// ParsePattern maps a config value to a Pattern.
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(s) {
	case "", "whitespace":
		return PatternWhitespace, nil
	case "word":
		return PatternWord, nil
	default:
		return 0, fmt.Errorf("unknown token pattern %q", s)
	}
}

// wordRegex has no \b anchors: a maximal run of class characters is
// already bounded by non-class characters on both sides.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Normalizer removes a fixed stop-word set from lowercased text. It is
// immutable and safe for concurrent use.
type Normalizer struct {
	stop StopWords
}

// NewNormalizer returns a Normalizer for the given set, or for the English
// set when stop is nil.
func NewNormalizer(stop StopWords) *Normalizer {
	if stop == nil {
		stop = English()
	}
	return &Normalizer{stop: stop}
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize cleans text with the English stop-word set.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// Normalize lowercases text, drops stop-words and rejoins the remaining
// tokens with single spaces.
func (n *Normalizer) Normalize(text string) string {
	words := strings.Fields(strings.ToLower(text))
	kept := words[:0]
	for _, w := range words {
		if n.stop.Contains(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// NormalizeAll normalises every text, spreading the work over workers
// goroutines. Output order matches input order.
func (n *Normalizer) NormalizeAll(ctx context.Context, texts []string, workers int) ([]string, error) {
	out := make([]string, len(texts))
	err := parallel.For(ctx, len(texts), workers, func(_, i int) error {
		out[i] = n.Normalize(texts[i])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("normalizing corpus: %w", err)
	}
	return out, nil
}

// Terms splits normalised text into vocabulary terms.
func Terms(normalized string, p Pattern) []string {
	if p == PatternWord {
		return wordRegex.FindAllString(normalized, -1)
	}
	return strings.Fields(normalized)
}
