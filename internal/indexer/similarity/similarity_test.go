package similarity

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tfidf"
)

func build(t testing.TB, docs []string, normalize bool) *tfidf.Matrix {
	t.Helper()
	w, err := tfidf.Build(context.Background(), docs, tfidf.Options{Normalize: normalize})
	require.NoError(t, err)
	return w
}

// bruteForce evaluates cosine similarity directly from the definition.
func bruteForce(w *tfidf.Matrix, i, j int) float64 {
	var dot, ni, nj float64
	for col := 0; col < w.Cols(); col++ {
		a, b := w.Weight(i, col), w.Weight(j, col)
		dot += a * b
		ni += a * a
		nj += b * b
	}
	if ni == 0 || nj == 0 {
		return 0
	}
	return dot / (math.Sqrt(ni) * math.Sqrt(nj))
}

func TestComputeScenario(t *testing.T) {
	w := build(t, []string{"love joy peace", "love joy", "war famine"}, true)
	sim, err := Compute(context.Background(), w, 2)
	require.NoError(t, err)

	require.Equal(t, 3, sim.Dim())
	assert.Greater(t, sim.At(0, 1), sim.At(0, 2))
	assert.Zero(t, sim.At(0, 2))
	assert.InDelta(t, bruteForce(w, 0, 1), sim.At(0, 1), 1e-12)
}

func TestComputeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"lord", "god", "israel", "king", "son", "land", "people", "house", "day", "hand", "word", "heart"}
	docs := make([]string, 120)
	for i := range docs {
		n := rng.Intn(6)
		text := ""
		for k := 0; k < n; k++ {
			text += words[rng.Intn(len(words))] + " "
		}
		docs[i] = text
	}
	docs[5] = "" // zero-norm row

	for _, normalize := range []bool{true, false} {
		t.Run(fmt.Sprintf("normalize=%v", normalize), func(t *testing.T) {
			w := build(t, docs, normalize)
			sim, err := Compute(context.Background(), w, 4)
			require.NoError(t, err)

			for i := 0; i < sim.Dim(); i++ {
				if w.Norm(i) == 0 {
					assert.Zero(t, sim.At(i, i), "zero row %d", i)
				} else {
					assert.Equal(t, 1.0, sim.At(i, i), "diagonal %d", i)
				}
				for j := 0; j < sim.Dim(); j++ {
					v := sim.At(i, j)
					assert.Equal(t, v, sim.At(j, i), "symmetry %d,%d", i, j)
					assert.GreaterOrEqual(t, v, 0.0)
					assert.LessOrEqual(t, v, 1.0)
					if i != j {
						assert.InDelta(t, bruteForce(w, i, j), v, 1e-9, "cell %d,%d", i, j)
					}
				}
			}
		})
	}
}

func TestZeroNormRow(t *testing.T) {
	w := build(t, []string{"light darkness", "", "light"}, true)
	sim, err := Compute(context.Background(), w, 1)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		assert.Zero(t, sim.At(1, j))
		assert.Zero(t, sim.At(j, 1))
	}
}

func TestRow(t *testing.T) {
	w := build(t, []string{"a1 b1", "a1", "b1 c1", "c1"}, true)
	sim, err := Compute(context.Background(), w, 3)
	require.NoError(t, err)
	for i := 0; i < sim.Dim(); i++ {
		row := sim.Row(i, nil)
		require.Len(t, row, sim.Dim())
		for j, v := range row {
			assert.Equal(t, sim.At(i, j), v)
		}
	}
	buf := make([]float64, 0, 16)
	assert.Len(t, sim.Row(2, buf), 4)
	assert.Panics(t, func() { sim.Row(4, nil) })
}

func TestComputeCancelled(t *testing.T) {
	w := build(t, []string{"a1 b1", "b1"}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, w, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkCompute(b *testing.B) {
	docs := make([]string, 3000)
	for i := range docs {
		docs[i] = fmt.Sprintf("lord god w%d w%d people land w%d", i%311, i%97, i%13)
	}
	w := build(b, docs, true)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compute(context.Background(), w, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func TestBackingLayout(t *testing.T) {
	w := build(t, []string{"love joy peace", "love joy", "joy peace", "war famine"}, true)
	sim, err := Compute(context.Background(), w, 2)
	require.NoError(t, err)

	raw := sim.sym.RawSymmetric()
	n := sim.Dim()
	assert.Len(t, raw.Data, n*raw.Stride, "full n×n backing array")
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			assert.Zero(t, raw.Data[i*raw.Stride+j], "lower triangle (%d,%d) is never written", i, j)
			assert.Equal(t, raw.Data[j*raw.Stride+i], sim.At(i, j))
		}
	}
	assert.Greater(t, sim.At(1, 0), 0.0)
}
