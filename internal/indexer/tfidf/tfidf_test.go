package tfidf

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tokenizer"
)

func idf(n, df float64) float64 {
	return math.Log((1+n)/(1+df)) + 1
}

func TestBuildRawWeights(t *testing.T) {
	docs := []string{"love joy peace", "love joy", "war famine", "love love"}
	m, err := Build(context.Background(), docs, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 5, m.Cols())
	vocab := m.Vocabulary()
	for col, term := range []string{"famine", "joy", "love", "peace", "war"} {
		assert.Equal(t, term, vocab.Term(col))
		got, ok := vocab.Column(term)
		require.True(t, ok)
		assert.Equal(t, col, got)
	}
	_, ok := vocab.Column("hate")
	assert.False(t, ok)

	love, _ := vocab.Column("love")
	peace, _ := vocab.Column("peace")
	war, _ := vocab.Column("war")
	assert.Equal(t, 3, m.DocFreq(love))
	assert.InDelta(t, idf(4, 3), m.IDF(love), 1e-12)
	assert.InDelta(t, idf(4, 1), m.Weight(0, peace), 1e-12)
	assert.InDelta(t, 2*idf(4, 3), m.Weight(3, love), 1e-12, "term frequency is the raw count")
	assert.Zero(t, m.Weight(0, war), "absent term has zero weight")

	wantNorm := math.Sqrt(2*math.Pow(idf(4, 1), 2))
	assert.InDelta(t, wantNorm, m.Norm(2), 1e-12)
	assert.Equal(t, 8, m.NonZero())
}

func TestBuildNormalizedRows(t *testing.T) {
	docs := []string{"love joy peace", "love joy", ""}
	m, err := Build(context.Background(), docs, Options{Normalize: true, Workers: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		var sumSq float64
		for _, e := range m.Row(i) {
			assert.Positive(t, e.Weight)
			sumSq += e.Weight * e.Weight
		}
		assert.InDelta(t, 1, sumSq, 1e-12)
		assert.Equal(t, 1.0, m.Norm(i))
	}
	assert.Empty(t, m.Row(2), "stop-word-only document has an empty row")
	assert.Zero(t, m.Norm(2))
}

func TestBuildRowsSortedAndDeterministic(t *testing.T) {
	docs := make([]string, 200)
	for i := range docs {
		docs[i] = fmt.Sprintf("w%d w%d shared w%d", i%17, i%5, i%3)
	}
	a, err := Build(context.Background(), docs, Options{Normalize: true, Workers: 8})
	require.NoError(t, err)
	b, err := Build(context.Background(), docs, Options{Normalize: true, Workers: 1})
	require.NoError(t, err)

	require.Equal(t, a.Cols(), b.Cols())
	for i := 0; i < a.Rows(); i++ {
		assert.Equal(t, a.Row(i), b.Row(i))
		for k := 1; k < len(a.Row(i)); k++ {
			assert.Less(t, a.Row(i)[k-1].Col, a.Row(i)[k].Col)
		}
	}
}

func TestBuildWordPattern(t *testing.T) {
	m, err := Build(context.Background(), []string{"light, light. darkness!"}, Options{Pattern: tokenizer.PatternWord})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Cols())
	light, ok := m.Vocabulary().Column("light")
	require.True(t, ok)
	assert.InDelta(t, 2*idf(1, 1), m.Weight(0, light), 1e-12)

	ws, err := Build(context.Background(), []string{"light, light. darkness!"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, ws.Cols(), "whitespace pattern keeps punctuation")
}

func TestBuildFaults(t *testing.T) {
	_, err := Build(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	_, err = Build(context.Background(), []string{"", "   "}, Options{})
	assert.ErrorIs(t, err, ErrEmptyVocabulary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, []string{"a b"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkBuild(b *testing.B) {
	docs := make([]string, 5000)
	for i := range docs {
		docs[i] = fmt.Sprintf("lord god w%d w%d people land w%d", i%311, i%97, i%13)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(context.Background(), docs, Options{Normalize: true}); err != nil {
			b.Fatal(err)
		}
	}
}
