// Package indexer builds the immutable similarity index of a verse corpus:
// normalisation, TF-IDF weighting, then pairwise cosine similarity.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/tracing"
)

// Build stage names, also used as span names.
const (
	StageBuild      = "index.build"
	StageNormalize  = "normalize"
	StageTFIDF      = "tfidf"
	StageSimilarity = "similarity"
)

// Options controls an index build.
type Options struct {
	Workers   int
	Normalize bool
	Pattern   tokenizer.Pattern
	StopWords tokenizer.StopWords
	// LogSpans logs the build span tree when the build finishes.
	LogSpans bool
}

// DefaultOptions mirrors the default indexer configuration.
func DefaultOptions() Options {
	return Options{Normalize: true, Pattern: tokenizer.PatternWhitespace}
}

// OptionsFromConfig resolves the token pattern and the stop-word file.
func OptionsFromConfig(cfg config.IndexerConfig, tracingEnabled bool) (Options, error) {
	pattern, err := tokenizer.ParsePattern(cfg.TokenPattern)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Workers:   cfg.Workers,
		Normalize: cfg.Normalize,
		Pattern:   pattern,
		LogSpans:  tracingEnabled,
	}
	if cfg.StopWordsFile != "" {
		stop, err := tokenizer.LoadStopWords(cfg.StopWordsFile)
		if err != nil {
			return Options{}, err
		}
		opts.StopWords = stop
	}
	return opts, nil
}

// Stats describes a finished build.
type Stats struct {
	Documents     int                      `json:"documents"`
	Vocabulary    int                      `json:"vocabulary"`
	NonZero       int                      `json:"non_zero"`
	ZeroRows      int                      `json:"zero_rows"`
	Dropped       int                      `json:"dropped_rows"`
	Fingerprint   string                   `json:"fingerprint"`
	BuildDuration time.Duration            `json:"-"`
	Stages        map[string]time.Duration `json:"-"`
}

// Index is the immutable product of a build. It is safe for concurrent
// readers.
type Index struct {
	table   *corpus.Table
	weights *tfidf.Matrix
	sim     *similarity.Matrix
	stats   Stats
}

func (ix *Index) Table() *corpus.Table           { return ix.table }
func (ix *Index) Weights() *tfidf.Matrix         { return ix.weights }
func (ix *Index) Similarity() *similarity.Matrix { return ix.sim }
func (ix *Index) Len() int                       { return ix.table.Len() }
func (ix *Index) Fingerprint() string            { return ix.stats.Fingerprint }

// Stats returns a copy of the build statistics.
func (ix *Index) Stats() Stats {
	s := ix.stats
	s.Stages = make(map[string]time.Duration, len(ix.stats.Stages))
	for k, v := range ix.stats.Stages {
		s.Stages[k] = v
	}
	return s
}

// BuildFromSource loads the corpus from src and builds its index.
func BuildFromSource(ctx context.Context, src corpus.Source, catalog *corpus.Catalog, opts Options) (*Index, error) {
	loaded, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading corpus: %w", apperrors.ErrBuildFault, err)
	}
	return Build(ctx, loaded, catalog, opts)
}

// Build runs normalize, tfidf and similarity over loaded. Every failure is
// reported as ErrBuildFault wrapping the stage error.
func Build(ctx context.Context, loaded *corpus.LoadResult, catalog *corpus.Catalog, opts Options) (*Index, error) {
	logger := slog.Default().With("component", "indexer")
	ix, err := build(ctx, loaded, catalog, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBuildFault, err)
	}
	return ix, nil
}

func build(ctx context.Context, loaded *corpus.LoadResult, catalog *corpus.Catalog, opts Options, logger *slog.Logger) (*Index, error) {
	if loaded == nil {
		loaded = &corpus.LoadResult{}
	}
	ctx, root := tracing.StartChildSpan(ctx, StageBuild)
	defer func() {
		root.End()
		if opts.LogSpans {
			root.Log(logger)
		}
	}()

	table, err := corpus.NewTable(loaded.Records, catalog)
	if err != nil {
		return nil, err
	}
	root.SetAttr("documents", table.Len())

	_, span := tracing.StartChildSpan(ctx, StageNormalize)
	normalized, err := tokenizer.NewNormalizer(opts.StopWords).NormalizeAll(ctx, table.Texts(), opts.Workers)
	span.End()
	if err != nil {
		return nil, err
	}
	if err := table.SetNormalized(normalized); err != nil {
		return nil, err
	}
	logger.Info("corpus normalized", "documents", table.Len(), "duration", span.Duration())

	_, span = tracing.StartChildSpan(ctx, StageTFIDF)
	weights, err := tfidf.Build(ctx, normalized, tfidf.Options{
		Pattern:   opts.Pattern,
		Normalize: opts.Normalize,
		Workers:   opts.Workers,
	})
	span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("vocabulary", weights.Cols())
	logger.Info("tf-idf matrix built",
		"vocabulary", weights.Cols(),
		"non_zero", weights.NonZero(),
		"duration", span.Duration(),
	)

	_, span = tracing.StartChildSpan(ctx, StageSimilarity)
	sim, err := similarity.Compute(ctx, weights, opts.Workers)
	span.End()
	if err != nil {
		return nil, err
	}
	if sim.Dim() != table.Len() || weights.Rows() != table.Len() {
		return nil, fmt.Errorf("%w: %d documents, %d weight rows, similarity dimension %d",
			similarity.ErrDimensionMismatch, table.Len(), weights.Rows(), sim.Dim())
	}
	logger.Info("similarity matrix computed", "dimension", sim.Dim(), "duration", span.Duration())

	zero := 0
	for i := 0; i < weights.Rows(); i++ {
		if weights.Norm(i) == 0 {
			zero++
		}
	}
	stages := root.Durations()
	stages[StageBuild] = root.Duration()
	ix := &Index{
		table:   table,
		weights: weights,
		sim:     sim,
		stats: Stats{
			Documents:     table.Len(),
			Vocabulary:    weights.Cols(),
			NonZero:       weights.NonZero(),
			ZeroRows:      zero,
			Dropped:       loaded.Dropped,
			Fingerprint:   Fingerprint(loaded.Records, opts),
			BuildDuration: root.Duration(),
			Stages:        stages,
		},
	}
	if zero > 0 {
		logger.Warn("documents with no indexable terms", "count", zero)
	}
	return ix, nil
}

// Fingerprint hashes the records and the options that change weights, so
// two builds with equal fingerprints answer every query identically.
func Fingerprint(records []corpus.Record, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "pattern=%s normalize=%t\n", opts.Pattern, opts.Normalize)
	if opts.StopWords != nil {
		words := make([]string, 0, len(opts.StopWords))
		for w := range opts.StopWords {
			words = append(words, w)
		}
		sort.Strings(words)
		for _, w := range words {
			fmt.Fprintf(h, "stop=%s\n", w)
		}
	}
	var buf []byte
	for _, r := range records {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(r.Locator.Group), 10)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(r.Locator.Subgroup), 10)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(r.Locator.Position), 10)
		buf = append(buf, 0)
		buf = append(buf, r.Text...)
		buf = append(buf, '\n')
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
