package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/middleware"
)

// Routes served by Register, used to bound metric label cardinality.
var Routes = []string{
	"/api/v1/similar",
	"/api/v1/verse",
	"/api/v1/books",
	"/api/v1/index/stats",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
}

type Handler struct {
	source    resolver.IndexSource
	resolver  *resolver.Resolver
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	search    config.SearchConfig
	logger    *slog.Logger
}

// New wires the query endpoints. queryCache, collector and m may be nil.
func New(
	source resolver.IndexSource,
	res *resolver.Resolver,
	queryCache *cache.QueryCache,
	collector *analytics.Collector,
	m *metrics.Metrics,
	search config.SearchConfig,
) *Handler {
	return &Handler{
		source:    source,
		resolver:  res,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		search:    search,
		logger:    slog.Default().With("component", "query-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/verse", h.Verse)
	mux.HandleFunc("GET /api/v1/books", h.Books)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type verseResponse struct {
	Book     string `json:"book"`
	BookCode int    `json:"book_code"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse"`
	Text     string `json:"text"`
}

type queryEcho struct {
	verseResponse
	TopN int `json:"top_n"`
}

type similarResponse struct {
	Query   queryEcho        `json:"query"`
	Results []resolver.Match `json:"results"`
	Cached  bool             `json:"cached"`
}

type verseParams struct {
	book    string
	chapter int
	verse   int
}

// Similar answers GET /api/v1/similar?book=&chapter=&verse=&top_n=.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	event := analytics.QueryEvent{
		Type:      analytics.EventQuery,
		RequestID: middleware.GetRequestID(ctx),
	}
	fail := func(err error) {
		event.Type = eventType(err)
		h.observe(outcome(err), "none", 0, start)
		h.track(event, start)
		h.writeError(w, err)
	}

	ix, err := h.source.Current()
	if err != nil {
		fail(err)
		return
	}

	params, err := h.parseVerse(r)
	if err != nil {
		fail(err)
		return
	}
	event.Book, event.Chapter, event.Verse = params.book, params.chapter, params.verse

	topN, err := h.parseTopN(r)
	if err != nil {
		fail(err)
		return
	}
	event.TopN = topN

	loc, err := h.resolver.Locate(params.book, params.chapter, params.verse)
	if err != nil {
		fail(err)
		return
	}
	doc, err := h.resolver.Lookup(loc)
	if err != nil {
		fail(err)
		return
	}

	compute := func() ([]resolver.Match, error) {
		return h.resolver.FindSimilar(ctx, loc, topN)
	}
	var matches []resolver.Match
	cached := false
	cacheStatus := "disabled"
	if h.cache != nil {
		matches, cached, err = h.cache.GetOrCompute(ctx, ix.Fingerprint(), loc, topN, compute)
		cacheStatus = "miss"
		if cached {
			cacheStatus = "hit"
		}
	} else {
		matches, err = compute()
	}
	if err != nil {
		log.Error("similarity query failed", "locator", loc.String(), "error", err)
		fail(err)
		return
	}

	h.observe("ok", cacheStatus, len(matches), start)
	event.Returned = len(matches)
	event.CacheHit = cached
	if len(matches) > 0 {
		event.TopScore = matches[0].Score
	}
	h.track(event, start)

	log.Info("similarity query completed",
		"book", doc.Name,
		"locator", loc.String(),
		"top_n", topN,
		"returned", len(matches),
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, similarResponse{
		Query:   queryEcho{verseResponse: toVerse(doc), TopN: topN},
		Results: matches,
		Cached:  cached,
	})
}

// Verse answers GET /api/v1/verse?book=&chapter=&verse= with the stored text.
func (h *Handler) Verse(w http.ResponseWriter, r *http.Request) {
	if _, err := h.source.Current(); err != nil {
		h.writeError(w, err)
		return
	}
	params, err := h.parseVerse(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	loc, err := h.resolver.Locate(params.book, params.chapter, params.verse)
	if err != nil {
		h.writeError(w, err)
		return
	}
	doc, err := h.resolver.Lookup(loc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toVerse(doc))
}

// Books lists the catalog ordered by code.
func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	ix, err := h.source.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"books": ix.Table().Catalog().Entries(),
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	ix, err := h.source.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats := ix.Stats()
	stages := make(map[string]float64, len(stats.Stages))
	for name, d := range stats.Stages {
		stages[name] = d.Seconds() * 1000
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":         stats.Documents,
		"vocabulary":        stats.Vocabulary,
		"non_zero":          stats.NonZero,
		"zero_rows":         stats.ZeroRows,
		"dropped_rows":      stats.Dropped,
		"fingerprint":       stats.Fingerprint,
		"build_duration_ms": stats.BuildDuration.Seconds() * 1000,
		"stages_ms":         stages,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"total":    stats.Hits + stats.Misses,
		"hit_rate": fmt.Sprintf("%.1f%%", stats.HitRate()),
		"breaker":  stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) parseVerse(r *http.Request) (verseParams, error) {
	q := r.URL.Query()
	book := strings.TrimSpace(q.Get("book"))
	if book == "" {
		return verseParams{}, apperrors.Invalid("query parameter 'book' is required")
	}
	chapter, err := boundedInt(q.Get("chapter"), "chapter", h.search.MaxSubgroup)
	if err != nil {
		return verseParams{}, err
	}
	verse, err := boundedInt(q.Get("verse"), "verse", h.search.MaxPosition)
	if err != nil {
		return verseParams{}, err
	}
	return verseParams{book: book, chapter: chapter, verse: verse}, nil
}

// parseTopN applies the default when top_n is absent and clamps numeric
// values into 1..maxResults.
func (h *Handler) parseTopN(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top_n")
	if raw == "" {
		return h.search.DefaultTopN, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid("top_n must be an integer, got %q", raw)
	}
	return max(1, min(n, h.search.MaxResults)), nil
}

func boundedInt(raw, name string, limit int) (int, error) {
	if raw == "" {
		return 0, apperrors.Invalid("query parameter '%s' is required", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid("%s must be an integer, got %q", name, raw)
	}
	if n < 1 || n > limit {
		return 0, apperrors.Invalid("%s must be within 1..%d, got %d", name, limit, n)
	}
	return n, nil
}

func (h *Handler) observe(outcome, cacheStatus string, returned int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		return
	}
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.QueryResultsCount.Observe(float64(returned))
	switch cacheStatus {
	case "hit":
		h.metrics.CacheHitsTotal.Inc()
	case "miss":
		h.metrics.CacheMissesTotal.Inc()
	}
}

func (h *Handler) track(event analytics.QueryEvent, start time.Time) {
	if h.collector == nil {
		return
	}
	event.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	event.Timestamp = time.Now().UTC()
	h.collector.Track(event)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, apperrors.ErrIndexNotReady):
		return "not_ready"
	default:
		return "error"
	}
}

func eventType(err error) analytics.EventType {
	switch {
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return analytics.EventNotFound
	case errors.Is(err, apperrors.ErrInvalidInput):
		return analytics.EventInvalid
	default:
		return analytics.EventFailure
	}
}

func toVerse(doc corpus.Document) verseResponse {
	return verseResponse{
		Book:     doc.Name,
		BookCode: doc.Locator.Group,
		Chapter:  doc.Locator.Subgroup,
		Verse:    doc.Locator.Position,
		Text:     doc.Text,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto its HTTP status. Internal failures never leak
// their detail to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := apperrors.Message(err)
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
