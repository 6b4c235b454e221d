// Package similarity computes the exact pairwise cosine similarity of every
// row of a TF-IDF weight matrix.
//
// The product W·Wᵀ is evaluated through an inverted column index, so row i
// only touches the rows that share at least one term with it. Pairs with no
// shared term keep the zero value. The result is held in a symmetric
// dense matrix and is read-only afterwards. SymDense allocates the full n×n
// backing array; only its upper triangle is written and read.
package similarity

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/parallel"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tfidf"
)

var ErrDimensionMismatch = errors.New("similarity dimension mismatch")

// Matrix is the symmetric document-by-document similarity matrix. A row
// with zero norm is 0 against every document, itself included; every other
// row has 1 on the diagonal.
type Matrix struct {
	sym *mat.SymDense
}

// Dim returns the number of documents.
func (m *Matrix) Dim() int {
	return m.sym.SymmetricDim()
}

// At returns sim(i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.sym.At(i, j)
}

// Row copies row i into dst, allocating when dst is too small.
func (m *Matrix) Row(i int, dst []float64) []float64 {
	raw := m.sym.RawSymmetric()
	n := raw.N
	if i < 0 || i >= n {
		panic(fmt.Sprintf("similarity: row %d out of range [0,%d)", i, n))
	}
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	// Only the upper triangle is populated: column i above the diagonal, row i
	// from the diagonal on.
	for j := 0; j < i; j++ {
		dst[j] = raw.Data[j*raw.Stride+i]
	}
	copy(dst[i:], raw.Data[i*raw.Stride+i:i*raw.Stride+n])
	return dst
}

type posting struct {
	row    int
	weight float64
}

// Compute evaluates every pairwise similarity of w using workers goroutines.
func Compute(ctx context.Context, w *tfidf.Matrix, workers int) (*Matrix, error) {
	n := w.Rows()
	if n == 0 {
		return nil, fmt.Errorf("%w: weight matrix has no rows", ErrDimensionMismatch)
	}
	postings, err := invert(w)
	if err != nil {
		return nil, err
	}

	sym := mat.NewSymDense(n, nil)
	workers = min(parallel.Workers(workers), n)
	scratch := make([]accumulator, workers)
	for k := range scratch {
		scratch[k] = accumulator{dot: make([]float64, n)}
	}

	err = parallel.For(ctx, n, workers, func(worker, i int) error {
		normI := w.Norm(i)
		if normI == 0 {
			return nil
		}
		acc := &scratch[worker]
		for _, e := range w.Row(i) {
			list := postings[e.Col]
			for _, p := range list[lowerBound(list, i):] {
				if acc.dot[p.row] == 0 {
					acc.touched = append(acc.touched, p.row)
				}
				acc.dot[p.row] += e.Weight * p.weight
			}
		}
		for _, j := range acc.touched {
			if j != i {
				sym.SetSym(i, j, clamp(acc.dot[j]/(normI*w.Norm(j))))
			}
			acc.dot[j] = 0
		}
		acc.touched = acc.touched[:0]
		sym.SetSym(i, i, 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("computing similarity rows: %w", err)
	}
	return &Matrix{sym: sym}, nil
}

// accumulator is per-worker scratch space; dot is kept all-zero between rows
// by resetting only the touched entries.
type accumulator struct {
	dot     []float64
	touched []int
}

// invert builds, for each column, the rows holding a weight in ascending row
// order.
func invert(w *tfidf.Matrix) ([][]posting, error) {
	cols := w.Cols()
	postings := make([][]posting, cols)
	for i := 0; i < w.Rows(); i++ {
		for _, e := range w.Row(i) {
			if e.Col < 0 || e.Col >= cols {
				return nil, fmt.Errorf("%w: row %d references column %d of %d", ErrDimensionMismatch, i, e.Col, cols)
			}
			postings[e.Col] = append(postings[e.Col], posting{row: i, weight: e.Weight})
		}
	}
	return postings, nil
}

// lowerBound returns the first index in list whose row is >= row.
func lowerBound(list []posting, row int) int {
	lo, hi := 0, len(list)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if list[mid].row < row {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < 0:
		return 0
	default:
		return v
	}
}
