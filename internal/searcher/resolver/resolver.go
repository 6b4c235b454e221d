// Package resolver answers nearest-neighbour queries against a built index:
// it maps a locator to its row, ranks every other row by similarity and
// joins the winners back to the document table.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/logger"
)

// IndexSource hands out the index to query. *indexer.Provider satisfies it.
type IndexSource interface {
	Current() (*indexer.Index, error)
}

type staticSource struct{ ix *indexer.Index }

func (s staticSource) Current() (*indexer.Index, error) { return s.ix, nil }

// Static wraps an already built index.
func Static(ix *indexer.Index) IndexSource {
	return staticSource{ix: ix}
}

// Match is one recommended document.
type Match struct {
	Name     string  `json:"book"`
	Group    int     `json:"book_code"`
	Subgroup int     `json:"chapter"`
	Position int     `json:"verse"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Row      int     `json:"row"`
}

func (m Match) String() string {
	return fmt.Sprintf("%s %d:%d", m.Name, m.Subgroup, m.Position)
}

// Resolver is read-only and safe for concurrent use.
type Resolver struct {
	source     IndexSource
	maxResults int
	rows       sync.Pool
	logger     *slog.Logger
}

// New returns a Resolver that never returns more than maxResults matches.
// maxResults <= 0 leaves only the corpus size as the bound.
func New(source IndexSource, maxResults int) *Resolver {
	return &Resolver{
		source:     source,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "resolver"),
	}
}

// Lookup returns the document stored at loc.
func (r *Resolver) Lookup(loc corpus.Locator) (corpus.Document, error) {
	ix, err := r.source.Current()
	if err != nil {
		return corpus.Document{}, err
	}
	row, err := resolve(ix, loc)
	if err != nil {
		return corpus.Document{}, err
	}
	return ix.Table().Row(row), nil
}

// Locate maps a display name plus subgroup and position to a locator.
// Unknown names are reported as ErrDocumentNotFound.
func (r *Resolver) Locate(name string, subgroup, position int) (corpus.Locator, error) {
	ix, err := r.source.Current()
	if err != nil {
		return corpus.Locator{}, err
	}
	code, ok := ix.Table().Catalog().Code(name)
	if !ok {
		return corpus.Locator{}, apperrors.NotFound("unknown book %q", name)
	}
	loc := corpus.Locator{Group: code, Subgroup: subgroup, Position: position}
	if !loc.Valid() {
		return corpus.Locator{}, apperrors.Invalid("chapter and verse must be non-negative, got %d:%d", subgroup, position)
	}
	return loc, nil
}

// FindSimilar returns up to topN documents most similar to the one at loc,
// best first, never including loc itself. topN is clamped to the corpus
// size minus one and to the configured maximum; values below 1 become 1.
func (r *Resolver) FindSimilar(ctx context.Context, loc corpus.Locator, topN int) (matches []Match, err error) {
	defer r.recoverQuery(ctx, loc.String(), &matches, &err)

	ix, err := r.source.Current()
	if err != nil {
		return []Match{}, err
	}
	row, err := resolve(ix, loc)
	if err != nil {
		return []Match{}, err
	}

	k := r.clamp(topN, ix.Len())
	if k == 0 {
		return []Match{}, nil
	}

	buf := r.rowBuffer(ix.Len())
	defer r.rows.Put(buf)
	scores := ix.Similarity().Row(row, *buf)
	ranked := ranker.TopK(scores, k, row)

	table := ix.Table()
	matches = make([]Match, len(ranked))
	for i, sd := range ranked {
		doc := table.Row(sd.Row)
		matches[i] = Match{
			Name:     doc.Name,
			Group:    doc.Locator.Group,
			Subgroup: doc.Locator.Subgroup,
			Position: doc.Locator.Position,
			Text:     doc.Text,
			Score:    sd.Score,
			Row:      sd.Row,
		}
	}
	r.logger.Debug("similarity query resolved",
		"request_id", logger.RequestID(ctx),
		"locator", loc.String(),
		"row", row,
		"requested", topN,
		"returned", len(matches),
	)
	return matches, nil
}

// FindSimilarByName is FindSimilar addressed by display name.
func (r *Resolver) FindSimilarByName(ctx context.Context, name string, subgroup, position, topN int) (matches []Match, err error) {
	defer r.recoverQuery(ctx, fmt.Sprintf("%s %d:%d", name, subgroup, position), &matches, &err)
	loc, err := r.Locate(name, subgroup, position)
	if err != nil {
		return []Match{}, err
	}
	return r.FindSimilar(ctx, loc, topN)
}

// recoverQuery turns a panic into ErrInternal with an empty result.
func (r *Resolver) recoverQuery(ctx context.Context, query string, matches *[]Match, err *error) {
	if p := recover(); p != nil {
		r.logger.Error("similarity query panicked",
			"request_id", logger.RequestID(ctx),
			"query", query,
			"panic", p,
		)
		*matches = []Match{}
		*err = apperrors.Internal("similarity query for %s failed", query)
	}
}

func (r *Resolver) clamp(topN, n int) int {
	limit := n - 1
	if r.maxResults > 0 {
		limit = min(limit, r.maxResults)
	}
	if limit <= 0 {
		return 0
	}
	return max(1, min(topN, limit))
}

func (r *Resolver) rowBuffer(n int) *[]float64 {
	if v, ok := r.rows.Get().(*[]float64); ok && cap(*v) >= n {
		return v
	}
	buf := make([]float64, n)
	return &buf
}

func resolve(ix *indexer.Index, loc corpus.Locator) (int, error) {
	if !loc.Valid() {
		return 0, apperrors.Invalid("locator %s has a negative component", loc)
	}
	row, ok := ix.Table().Lookup(loc)
	if !ok {
		return 0, apperrors.NotFound("no document at %s", loc)
	}
	return row, nil
}
