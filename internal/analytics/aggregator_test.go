package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	return data
}

func TestHandleEventRoutesSearchEvents(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	ev := SearchEvent{Type: EventSearch, Index: "idx", Query: "hello world", Mode: "and", Hits: 3, LatencyMs: 12}
	if err := handle(ctx, nil, mustJSON(t, ev)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stats := agg.Stats()
	if stats.TotalSearches != 1 {
		t.Fatalf("TotalSearches = %d, want 1", stats.TotalSearches)
	}
	if stats.ZeroHitSearches != 0 {
		t.Fatalf("ZeroHitSearches = %d, want 0", stats.ZeroHitSearches)
	}
	if stats.SearchModes["and"] != 1 {
		t.Fatalf("SearchModes = %v, want and:1", stats.SearchModes)
	}
	if len(stats.TopQueries) != 1 || stats.TopQueries[0].Query != "hello world" {
		t.Fatalf("TopQueries = %v", stats.TopQueries)
	}
}

func TestHandleEventRoutesDocumentEvents(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	for _, ev := range []DocumentEvent{
		{Type: EventIndex, Index: "idx", DocumentID: "1"},
		{Type: EventIndex, Index: "idx", DocumentID: "2"},
		{Type: EventRemove, Index: "idx", DocumentID: "1"},
	} {
		if err := handle(ctx, nil, mustJSON(t, ev)); err != nil {
			t.Fatalf("handle %s: %v", ev.Type, err)
		}
	}

	stats := agg.Stats()
	if stats.DocumentsIndexed != 2 {
		t.Fatalf("DocumentsIndexed = %d, want 2", stats.DocumentsIndexed)
	}
	if stats.DocumentsRemoved != 1 {
		t.Fatalf("DocumentsRemoved = %d, want 1", stats.DocumentsRemoved)
	}
}

func TestHandleEventSkipsBadRecords(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	// Neither malformed JSON nor an unknown type may surface an error,
	// which would stall offset commits for the partition.
	if err := handle(ctx, nil, []byte(`{"type":`)); err != nil {
		t.Fatalf("malformed value: %v", err)
	}
	if err := handle(ctx, nil, []byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("unknown type: %v", err)
	}

	stats := agg.Stats()
	if stats.TotalSearches != 0 || stats.DocumentsIndexed != 0 {
		t.Fatalf("bad records were counted: %+v", stats)
	}
}

func TestZeroHitTracking(t *testing.T) {
	agg := NewAggregator()

	for i := 0; i < 3; i++ {
		agg.recordSearch(SearchEvent{Query: "mispeled band", Mode: "and", Hits: 0, LatencyMs: 5})
	}
	agg.recordSearch(SearchEvent{Query: "jazz", Mode: "and", Hits: 2, LatencyMs: 5})

	stats := agg.Stats()
	if stats.TotalSearches != 4 {
		t.Fatalf("TotalSearches = %d, want 4", stats.TotalSearches)
	}
	if stats.ZeroHitSearches != 3 {
		t.Fatalf("ZeroHitSearches = %d, want 3", stats.ZeroHitSearches)
	}
	if len(stats.ZeroHitQueries) != 1 || stats.ZeroHitQueries[0] != (QueryCount{Query: "mispeled band", Count: 3}) {
		t.Fatalf("ZeroHitQueries = %v", stats.ZeroHitQueries)
	}
	want := []QueryCount{{Query: "mispeled band", Count: 3}, {Query: "jazz", Count: 1}}
	for i, qc := range want {
		if stats.TopQueries[i] != qc {
			t.Fatalf("TopQueries = %v, want %v", stats.TopQueries, want)
		}
	}
}

func TestLatencyPercentiles(t *testing.T) {
	agg := NewAggregator()
	for i := int64(1); i <= 100; i++ {
		agg.recordSearch(SearchEvent{Query: "q", Mode: "or", Hits: 1, LatencyMs: i})
	}

	stats := agg.Stats()
	if stats.AvgLatencyMs != 50.5 {
		t.Fatalf("AvgLatencyMs = %v, want 50.5", stats.AvgLatencyMs)
	}
	if stats.P50LatencyMs != 51 {
		t.Fatalf("P50LatencyMs = %d, want 51", stats.P50LatencyMs)
	}
	if stats.P95LatencyMs != 96 {
		t.Fatalf("P95LatencyMs = %d, want 96", stats.P95LatencyMs)
	}
	if stats.P99LatencyMs != 100 {
		t.Fatalf("P99LatencyMs = %d, want 100", stats.P99LatencyMs)
	}
}

func TestLatencyWindowWraps(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+5; i++ {
		agg.recordSearch(SearchEvent{Query: "q", Mode: "and", Hits: 1, LatencyMs: int64(i)})
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()
	if len(agg.latencies) != latencyWindow {
		t.Fatalf("len(latencies) = %d, want %d", len(agg.latencies), latencyWindow)
	}
	if agg.latencyPos != 5 {
		t.Fatalf("latencyPos = %d, want 5", agg.latencyPos)
	}
}

func TestTopQueriesStableOrder(t *testing.T) {
	counts := map[string]int64{"beatles": 2, "abba": 2, "coltrane": 5}

	got := topQueries(counts, 10)
	want := []QueryCount{{"coltrane", 5}, {"abba", 2}, {"beatles", 2}}
	if len(got) != len(want) {
		t.Fatalf("topQueries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topQueries = %v, want %v", got, want)
		}
	}

	if capped := topQueries(counts, 2); len(capped) != 2 {
		t.Fatalf("topQueries capped = %v, want 2 entries", capped)
	}
}

func TestQueryCapStopsNewEntries(t *testing.T) {
	counts := make(map[string]int64, maxTrackedQueries)
	for i := 0; i < maxTrackedQueries; i++ {
		counts[strconv.Itoa(i)] = 1
	}

	countQuery(counts, "brand new query")
	if _, ok := counts["brand new query"]; ok {
		t.Fatal("new query admitted past the tracking cap")
	}
	countQuery(counts, "7")
	if counts["7"] != 2 {
		t.Fatalf("existing query count = %d, want 2", counts["7"])
	}
}
