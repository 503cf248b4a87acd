package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kersley/resound/pkg/kafka"
)

const (
	// latencyWindow bounds how many recent search latencies feed the
	// percentile stats.
	latencyWindow = 10000
	// maxTrackedQueries caps the number of distinct query strings counted.
	maxTrackedQueries = 25000
	topQueryCount     = 10
)

// QueryCount pairs a query string with how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Stats is an aggregate view over the consumed event stream.
type Stats struct {
	TotalSearches    int64            `json:"total_searches"`
	ZeroHitSearches  int64            `json:"zero_hit_searches"`
	DocumentsIndexed int64            `json:"documents_indexed"`
	DocumentsRemoved int64            `json:"documents_removed"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
	SearchModes      map[string]int64 `json:"search_modes"`
	TopQueries       []QueryCount     `json:"top_queries"`
	ZeroHitQueries   []QueryCount     `json:"zero_hit_queries"`
	CapturedAt       time.Time        `json:"captured_at"`
}

// Aggregator folds search and document events into rolling statistics. It
// holds no consumer itself; wire it to a topic with HandleEvent.
type Aggregator struct {
	mu             sync.Mutex
	totalSearches  int64
	zeroHits       int64
	docsIndexed    int64
	docsRemoved    int64
	latencies      []int64
	latencyPos     int
	modeCounts     map[string]int64
	queryCounts    map[string]int64
	zeroHitQueries map[string]int64
	startTime      time.Time
	logger         *slog.Logger
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:      make([]int64, 0, latencyWindow),
		modeCounts:     make(map[string]int64),
		queryCounts:    make(map[string]int64),
		zeroHitQueries: make(map[string]int64),
		startTime:      time.Now(),
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler that feeds the aggregator. Events that
// fail to decode are logged and skipped so one bad record cannot stall the
// partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var env struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &env); err != nil {
			agg.logger.Error("undecodable analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch:
			ev, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("bad search event", "error", err)
				return nil
			}
			agg.recordSearch(ev)
		case EventIndex, EventRemove:
			ev, err := kafka.DecodeJSON[DocumentEvent](value)
			if err != nil {
				agg.logger.Error("bad document event", "error", err)
				return nil
			}
			agg.recordDocument(ev)
		default:
			agg.logger.Warn("unknown analytics event type", "type", string(env.Type))
		}
		return nil
	}
}

func (a *Aggregator) recordSearch(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.latencyPos] = ev.LatencyMs
		a.latencyPos = (a.latencyPos + 1) % latencyWindow
	}
	a.modeCounts[ev.Mode]++
	countQuery(a.queryCounts, ev.Query)
	if ev.Hits == 0 {
		a.zeroHits++
		countQuery(a.zeroHitQueries, ev.Query)
	}
}

func (a *Aggregator) recordDocument(ev DocumentEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Type == EventRemove {
		a.docsRemoved++
		return
	}
	a.docsIndexed++
}

// countQuery increments counts[q], admitting new queries only while the map
// is below the tracking cap.
func countQuery(counts map[string]int64, q string) {
	if _, ok := counts[q]; !ok && len(counts) >= maxTrackedQueries {
		return
	}
	counts[q]++
}

// Stats returns a copy of the current aggregate.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalSearches:    a.totalSearches,
		ZeroHitSearches:  a.zeroHits,
		DocumentsIndexed: a.docsIndexed,
		DocumentsRemoved: a.docsRemoved,
		SearchModes:      make(map[string]int64, len(a.modeCounts)),
		CapturedAt:       time.Now().UTC(),
	}
	for mode, n := range a.modeCounts {
		stats.SearchModes[mode] = n
	}

	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}

	stats.TopQueries = topQueries(a.queryCounts, topQueryCount)
	stats.ZeroHitQueries = topQueries(a.zeroHitQueries, topQueryCount)
	if minutes := time.Since(a.startTime).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(a.totalSearches) / minutes
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topQueries returns the n highest counts, ties broken by query text so the
// result is stable.
func topQueries(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
