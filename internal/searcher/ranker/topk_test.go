package ranker

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	scores := []float64{1, 0.2, 0.9, 0.2, 0, 0.9}

	got := TopK(scores, 3, 0)
	assert.Equal(t, []ScoredDoc{{Row: 2, Score: 0.9}, {Row: 5, Score: 0.9}, {Row: 1, Score: 0.2}}, got)

	got = TopK(scores, 10, 0)
	require.Len(t, got, 5)
	assert.Equal(t, ScoredDoc{Row: 3, Score: 0.2}, got[3])
	assert.Equal(t, ScoredDoc{Row: 4, Score: 0}, got[4])

	assert.Len(t, TopK(scores, 10, -1), 6)
	assert.Nil(t, TopK(scores, 0, 0))
	assert.Empty(t, TopK(nil, 3, -1))
}

func TestTopKAllZero(t *testing.T) {
	got := TopK([]float64{0, 0, 0, 0}, 2, 1)
	assert.Equal(t, []ScoredDoc{{Row: 0}, {Row: 2}}, got)
}

func TestTopKMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	scores := make([]float64, 500)
	for i := range scores {
		// Coarse values produce plenty of ties.
		scores[i] = float64(rng.Intn(20)) / 20
	}
	exclude := 17

	all := make([]ScoredDoc, 0, len(scores))
	for row, s := range scores {
		if row != exclude {
			all = append(all, ScoredDoc{Row: row, Score: s})
		}
	}
	sort.Slice(all, func(i, j int) bool { return Better(all[i], all[j]) })

	for _, k := range []int{1, 7, 50, 499, 600} {
		want := all[:min(k, len(all))]
		assert.Equal(t, want, TopK(scores, k, exclude), "k=%d", k)
	}
}

func BenchmarkTopK(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	scores := make([]float64, 31000)
	for i := range scores {
		scores[i] = rng.Float64()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TopK(scores, 50, 0)
	}
}
