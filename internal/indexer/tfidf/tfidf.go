// Package tfidf builds the vocabulary and the sparse TF-IDF weight matrix of
// a corpus of normalised documents.
//
// Weights follow the smoothed formulation:
//
//	tf(t, d)  = raw count of t in d
//	idf(t)    = ln((1 + n) / (1 + df(t))) + 1
//	w(t, d)   = tf(t, d) * idf(t)
//
// where n is the number of documents and df(t) the number of documents
// containing t. idf is always >= 1, so a term present in a document always
// carries positive weight, and a term absent from a document is simply not
// stored in its row (weight 0). Rows are optionally scaled to unit L2 norm.
package tfidf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/parallel"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tokenizer"
)

var (
	ErrEmptyCorpus     = errors.New("corpus has no documents")
	ErrEmptyVocabulary = errors.New("corpus vocabulary is empty")
)

// Options controls tokenisation and row scaling.
type Options struct {
	Pattern   tokenizer.Pattern
	Normalize bool
	Workers   int
}

// Entry is one non-zero cell of a row.
type Entry struct {
	Col    int
	Weight float64
}

// Row is a sparse row sorted by column.
type Row []Entry

// Vocabulary maps terms to columns in lexicographic order.
type Vocabulary struct {
	terms []string
	index map[string]int
}

func (v *Vocabulary) Len() int { return len(v.terms) }

// Term returns the term stored in column col.
func (v *Vocabulary) Term(col int) string { return v.terms[col] }

// Column returns the column of term.
func (v *Vocabulary) Column(term string) (int, bool) {
	col, ok := v.index[term]
	return col, ok
}

// Matrix is the immutable weight matrix.
type Matrix struct {
	vocab   *Vocabulary
	rows    []Row
	norms   []float64
	idf     []float64
	docFreq []int
}

func (m *Matrix) Rows() int               { return len(m.rows) }
func (m *Matrix) Cols() int               { return m.vocab.Len() }
func (m *Matrix) Row(i int) Row           { return m.rows[i] }
func (m *Matrix) Vocabulary() *Vocabulary { return m.vocab }

// Norm is the L2 norm of the stored row i; 0 for a row with no terms.
func (m *Matrix) Norm(i int) float64 { return m.norms[i] }

// IDF returns the inverse document frequency of column col.
func (m *Matrix) IDF(col int) float64 { return m.idf[col] }

// DocFreq returns the number of documents containing column col.
func (m *Matrix) DocFreq(col int) int { return m.docFreq[col] }

// Weight returns the weight at (i, col), 0 when the term is absent.
func (m *Matrix) Weight(i, col int) float64 {
	row := m.rows[i]
	k := sort.Search(len(row), func(k int) bool { return row[k].Col >= col })
	if k < len(row) && row[k].Col == col {
		return row[k].Weight
	}
	return 0
}

// NonZero returns the number of stored cells.
func (m *Matrix) NonZero() int {
	total := 0
	for _, r := range m.rows {
		total += len(r)
	}
	return total
}

type termCount struct {
	term  string
	count int
}

// Build computes the weight matrix of docs. Row i of the result corresponds
// to docs[i]. The output is deterministic for a given input order.
func Build(ctx context.Context, docs []string, opts Options) (*Matrix, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	counts := make([][]termCount, len(docs))
	err := parallel.For(ctx, len(docs), opts.Workers, func(_, i int) error {
		counts[i] = countTerms(tokenizer.Terms(docs[i], opts.Pattern))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting terms: %w", err)
	}

	vocab := buildVocabulary(counts)
	if vocab.Len() == 0 {
		return nil, ErrEmptyVocabulary
	}

	docFreq := make([]int, vocab.Len())
	for _, doc := range counts {
		for _, tc := range doc {
			docFreq[vocab.index[tc.term]]++
		}
	}
	n := float64(len(docs))
	idf := make([]float64, vocab.Len())
	for col, df := range docFreq {
		idf[col] = math.Log((1+n)/(1+float64(df))) + 1
	}

	m := &Matrix{
		vocab:   vocab,
		rows:    make([]Row, len(docs)),
		norms:   make([]float64, len(docs)),
		idf:     idf,
		docFreq: docFreq,
	}
	err = parallel.For(ctx, len(docs), opts.Workers, func(_, i int) error {
		row := make(Row, len(counts[i]))
		var sumSq float64
		for k, tc := range counts[i] {
			col := vocab.index[tc.term]
			w := float64(tc.count) * idf[col]
			row[k] = Entry{Col: col, Weight: w}
			sumSq += w * w
		}
		sort.Slice(row, func(a, b int) bool { return row[a].Col < row[b].Col })
		norm := math.Sqrt(sumSq)
		if opts.Normalize && norm > 0 {
			for k := range row {
				row[k].Weight /= norm
			}
			norm = 1
		}
		m.rows[i] = row
		m.norms[i] = norm
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("weighting rows: %w", err)
	}
	return m, nil
}

func countTerms(terms []string) []termCount {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]int, len(terms))
	out := make([]termCount, 0, len(terms))
	for _, t := range terms {
		if k, ok := seen[t]; ok {
			out[k].count++
			continue
		}
		seen[t] = len(out)
		out = append(out, termCount{term: t, count: 1})
	}
	return out
}

func buildVocabulary(counts [][]termCount) *Vocabulary {
	set := make(map[string]struct{})
	for _, doc := range counts {
		for _, tc := range doc {
			set[tc.term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	index := make(map[string]int, len(terms))
	for col, t := range terms {
		index[t] = col
	}
	return &Vocabulary{terms: terms, index: index}
}
