package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type Stats struct {
	TotalQueries     int64        `json:"total_queries"`
	CacheHits        int64        `json:"cache_hits"`
	CacheMisses      int64        `json:"cache_misses"`
	NotFound         int64        `json:"not_found"`
	Invalid          int64        `json:"invalid"`
	Failures         int64        `json:"failures"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	P50LatencyMs     float64      `json:"p50_latency_ms"`
	P95LatencyMs     float64      `json:"p95_latency_ms"`
	P99LatencyMs     float64      `json:"p99_latency_ms"`
	TopVerses        []VerseCount `json:"top_verses"`
	MissingVerses    []VerseCount `json:"missing_verses"`
	QueriesPerMinute float64      `json:"queries_per_minute"`
}

type VerseCount struct {
	Verse string `json:"verse"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals over query events. It is safe for
// concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	stats     Stats
	latencies []float64
	next      int
	verses    map[string]int64
	missing   map[string]int64
	startTime time.Time
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]float64, 0, 1024),
		verses:    make(map[string]int64),
		missing:   make(map[string]int64),
		startTime: time.Now(),
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalQueries++
	key := event.Key()
	switch event.Type {
	case EventNotFound:
		a.stats.NotFound++
		a.missing[key]++
		return
	case EventInvalid:
		a.stats.Invalid++
		return
	case EventFailure:
		a.stats.Failures++
		return
	}
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	a.verses[key]++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Stats returns a snapshot with latency percentiles and the ten most
// queried and most often missing verses.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopVerses = topN(a.verses, 10)
	stats.MissingVerses = topN(a.missing, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode query event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func percentile(sorted []float64, pct int) float64 {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []VerseCount {
	result := make([]VerseCount, 0, len(counts))
	for verse, count := range counts {
		result = append(result, VerseCount{Verse: verse, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Verse < result[j].Verse
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
