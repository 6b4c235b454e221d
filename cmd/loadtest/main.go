// Command loadtest drives GET /api/v1/similar with a rotating set of verses
// and reports throughput, latency percentiles, cache hits and status codes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type target struct {
	book    string
	chapter int
	verse   int
}

var defaultTargets = []target{
	{"John", 3, 16},
	{"Genesis", 1, 1},
	{"Psalms", 23, 1},
	{"Romans", 8, 28},
	{"Proverbs", 3, 5},
	{"Isaiah", 40, 31},
	{"Matthew", 5, 9},
	{"1 Corinthians", 13, 4},
	{"Philippians", 4, 13},
	{"Revelation", 21, 4},
}

type stats struct {
	total     atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *stats) record(d time.Duration, code int, cached bool, err error) {
	s.total.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.failed.Add(1)
	}
	if cached {
		s.cacheHits.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the recommender")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	topN := flag.Int("top", 10, "top_n sent with every query")
	flag.Parse()

	fmt.Println("=== Verse Recommender Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Verses:      %d unique\n\n", len(defaultTargets))

	s := run(*baseURL, *concurrency, *duration, *topN)
	if !report(s, *duration) {
		os.Exit(1)
	}
}

func run(baseURL string, concurrency int, duration time.Duration, topN int) *stats {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				t := defaultTargets[i%len(defaultTargets)]
				start := time.Now()
				code, cached, err := query(ctx, client, similarURL(baseURL, t, topN))
				if ctx.Err() != nil {
					return nil
				}
				s.record(time.Since(start), code, cached, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return s
}

func similarURL(baseURL string, t target, topN int) string {
	q := url.Values{}
	q.Set("book", t.book)
	q.Set("chapter", strconv.Itoa(t.chapter))
	q.Set("verse", strconv.Itoa(t.verse))
	q.Set("top_n", strconv.Itoa(topN))
	return strings.TrimRight(baseURL, "/") + "/api/v1/similar?" + q.Encode()
}

func query(ctx context.Context, client *http.Client, rawURL string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		Cached bool `json:"cached"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.Cached, nil
}

// report prints the summary and returns false when nothing completed.
func report(s *stats, duration time.Duration) bool {
	total := s.total.Load()
	failed := s.failed.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", total-failed)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits.Load())/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println("\n=== Status Codes ===")
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.codes[code])
	}
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the recommender running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
