// Package analytics records what users ask the recommender: every query
// becomes a QueryEvent that is aggregated locally and, when Kafka is
// enabled, published for offline consumers.
package analytics

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventQuery    EventType = "similar_query"
	EventNotFound EventType = "not_found"
	EventInvalid  EventType = "invalid_query"
	EventFailure  EventType = "query_failure"
)

type QueryEvent struct {
	Type      EventType `json:"type"`
	Book      string    `json:"book"`
	Chapter   int       `json:"chapter"`
	Verse     int       `json:"verse"`
	TopN      int       `json:"top_n"`
	Returned  int       `json:"returned"`
	TopScore  float64   `json:"top_score"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Key is the partition key: events for the same verse share a partition.
func (e QueryEvent) Key() string {
	return fmt.Sprintf("%s:%d:%d", e.Book, e.Chapter, e.Verse)
}
