// Command loadtest exercises a running searchd instance.
//
// It first seeds the index with generated documents over the synchronous
// indexing endpoint, then runs concurrent mixed AND/OR search traffic for a
// fixed duration and reports throughput, latency percentiles, and status
// code counts.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] \
//	    [-duration 30s] [-seed 500]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// wordBank is the vocabulary documents and queries are sampled from, so a
// healthy portion of queries produce hits.
var wordBank = []string{
	"drum", "drummer", "guitar", "guitarist", "bass", "piano", "violin",
	"cello", "trumpet", "saxophone", "vocal", "singer", "songwriter",
	"acoustic", "electric", "jazz", "blues", "rock", "folk", "soul",
	"funk", "orchestra", "quartet", "ensemble", "symphony", "concerto",
	"melody", "harmony", "rhythm", "tempo", "chord", "lyric", "ballad",
	"anthem", "record", "studio", "session", "tour", "festival", "stage",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	SeedDocs    int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seedDocs := flag.Int("seed", 500, "documents to index before the run (0 skips seeding)")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		SeedDocs:    *seedDocs,
	}

	fmt.Println("=== Search Service Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Seed docs:   %d\n", cfg.SeedDocs)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.SeedDocs > 0 {
		if err := seedIndex(client, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
	}

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

// seedIndex posts generated documents to the synchronous indexing endpoint.
func seedIndex(client *http.Client, cfg Config) error {
	fmt.Print("Seeding")
	rng := rand.New(rand.NewSource(42))

	var failed int
	for i := 0; i < cfg.SeedDocs; i++ {
		doc := map[string]string{
			"id":   fmt.Sprintf("load-%d", i),
			"text": randomText(rng, 5+rng.Intn(20)),
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		resp, err := client.Post(cfg.BaseURL+"/api/v1/documents", "application/json", bytes.NewReader(body))
		if err != nil {
			failed++
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			failed++
		}
		if i > 0 && i%100 == 0 {
			fmt.Print(".")
		}
	}
	fmt.Println(" done!")
	if failed == cfg.SeedDocs {
		return fmt.Errorf("all %d seed requests failed, is the service running at %s?", failed, cfg.BaseURL)
	}
	if failed > 0 {
		fmt.Printf("WARNING: %d of %d seed requests failed\n", failed, cfg.SeedDocs)
	}
	fmt.Println()
	return nil
}

// randomText samples n words from the word bank.
func randomText(rng *rand.Rand, n int) string {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(wordBank[rng.Intn(len(wordBank))])
	}
	return b.String()
}

// randomQuery builds a one- or two-word query with a random combinator.
func randomQuery(rng *rand.Rand) string {
	q := wordBank[rng.Intn(len(wordBank))]
	if rng.Intn(2) == 0 {
		q += " " + wordBank[rng.Intn(len(wordBank))]
	}
	mode := "and"
	if rng.Intn(3) == 0 {
		mode = "or"
	}
	return fmt.Sprintf("q=%s&mode=%s&from=0&to=9", url.QueryEscape(q), mode)
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID)))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				searchURL := fmt.Sprintf("%s/api/v1/search?%s", cfg.BaseURL, randomQuery(rng))

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, searchURL))
				duration := time.Since(start)

				if err != nil {
					stats.RecordRequest(duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
