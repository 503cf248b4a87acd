// Package httpapi exposes the search service's HTTP surface: document
// indexing and removal, queries, cache control, and registry status lookup.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kersley/resound/internal/analytics"
	"github.com/kersley/resound/internal/analyzer"
	"github.com/kersley/resound/internal/engine"
	"github.com/kersley/resound/internal/ingest"
	"github.com/kersley/resound/internal/registry"
	"github.com/kersley/resound/pkg/config"
	apperrors "github.com/kersley/resound/pkg/errors"
	"github.com/kersley/resound/pkg/logger"
	"github.com/kersley/resound/pkg/metrics"
	"github.com/kersley/resound/pkg/middleware"
	"github.com/kersley/resound/pkg/resilience"
	"github.com/kersley/resound/pkg/tracing"
)

// maxBulkDocuments bounds a single bulk submission.
const maxBulkDocuments = 1000

// Handler serves the document and search endpoints for one index.
// publisher, reg, collector, and m may each be nil when the corresponding
// subsystem is disabled.
type Handler struct {
	index     *engine.Collection
	publisher *ingest.Publisher
	registry  registry.Registry
	collector *analytics.Collector
	metrics   *metrics.Metrics
	search    config.SearchConfig
	tracing   bool
	logger    *slog.Logger
}

func New(
	index *engine.Collection,
	publisher *ingest.Publisher,
	reg registry.Registry,
	collector *analytics.Collector,
	m *metrics.Metrics,
	searchCfg config.SearchConfig,
	tracingEnabled bool,
) *Handler {
	return &Handler{
		index:     index,
		publisher: publisher,
		registry:  reg,
		collector: collector,
		metrics:   m,
		search:    searchCfg,
		tracing:   tracingEnabled,
		logger:    slog.Default().With("component", "http-handler"),
	}
}

// SearchResponse is the JSON shape returned by the search endpoint.
type SearchResponse struct {
	Query string   `json:"query"`
	Mode  string   `json:"mode"`
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
	From  int64    `json:"from"`
	To    int64    `json:"to"`
}

// IndexDocument synchronously analyzes and indexes one document. The terms
// are searchable once the response is written.
func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ctx, finish := h.span(ctx, "http.index_document")
	defer finish()

	var doc ingest.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ingest.ValidateDocument(doc); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.index.Set(ctx, doc.ID, doc.Text); err != nil {
		log.Error("indexing failed", "doc_id", doc.ID, "error", err)
		h.writeError(w, h.statusFor(err), "indexing failed")
		return
	}

	h.recordIndexed(ctx, doc, log)
	if h.metrics != nil {
		h.metrics.DocsIndexedTotal.Inc()
	}

	latencyMs := time.Since(start).Milliseconds()
	h.collector.TrackDocument(analytics.DocumentEvent{
		Type:       analytics.EventIndex,
		Index:      h.index.Name(),
		DocumentID: doc.ID,
		Strategy:   string(h.index.Kind()),
		TermCount:  len(analyzer.Words(doc.Text)),
		SizeBytes:  len(doc.Text),
		LatencyMs:  latencyMs,
		RequestID:  middleware.GetRequestID(ctx),
	})

	log.Info("document indexed", "doc_id", doc.ID, "latency_ms", latencyMs)
	h.writeJSON(w, http.StatusOK, ingest.Receipt{DocumentID: doc.ID, Status: string(registry.StatusIndexed)})
}

// BulkIndex validates a batch of documents and enqueues them for the
// indexing worker, returning 202 with one PENDING receipt per document.
func (h *Handler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is disabled")
		return
	}

	var docs []ingest.Document
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(docs) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty batch")
		return
	}
	if len(docs) > maxBulkDocuments {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d documents", maxBulkDocuments))
		return
	}

	invalid := make(map[string]map[string]string)
	for i, doc := range docs {
		var vErr *ingest.ValidationError
		if err := ingest.ValidateDocument(doc); errors.As(err, &vErr) {
			key := doc.ID
			if key == "" {
				key = "#" + strconv.Itoa(i)
			}
			invalid[key] = vErr.Fields
		}
	}
	if len(invalid) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "validation failed",
			"documents": invalid,
		})
		return
	}

	receipts, err := h.publisher.EnqueueBatch(ctx, docs)
	if err != nil {
		log.Error("bulk enqueue failed", "count", len(docs), "error", err)
		h.writeError(w, h.statusFor(err), "enqueue failed")
		return
	}

	log.Info("documents enqueued", "count", len(receipts))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"documents": receipts})
}

// GetDocument returns the registry row for one document id.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registry == nil {
		h.writeError(w, http.StatusServiceUnavailable, "document registry is disabled")
		return
	}

	id := r.PathValue("id")
	doc, err := h.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			h.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		logger.FromContext(ctx).Error("registry lookup failed", "doc_id", id, "error", err)
		h.writeError(w, h.statusFor(err), "registry lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// DocumentStats reports how many registered documents sit in each lifecycle
// phase.
func (h *Handler) DocumentStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registry == nil {
		h.writeError(w, http.StatusServiceUnavailable, "document registry is disabled")
		return
	}

	counts, err := h.registry.CountByStatus(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("registry count failed", "error", err)
		h.writeError(w, h.statusFor(err), "registry count failed")
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"counts": counts,
		"total":  total,
	})
}

// RemoveDocument deletes a document's terms from the index. Removing an
// unknown id succeeds with no effect.
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ctx, finish := h.span(ctx, "http.remove_document")
	defer finish()

	id := r.PathValue("id")
	if err := h.index.Delete(ctx, id); err != nil {
		log.Error("removal failed", "doc_id", id, "error", err)
		h.writeError(w, h.statusFor(err), "removal failed")
		return
	}

	if h.registry != nil {
		if err := h.registry.MarkRemoved(ctx, id); err != nil && !errors.Is(err, apperrors.ErrDocumentNotFound) {
			log.Warn("registry update failed", "doc_id", id, "error", err)
		}
	}
	if h.metrics != nil {
		h.metrics.DocsRemovedTotal.Inc()
	}
	h.collector.TrackDocument(analytics.DocumentEvent{
		Type:       analytics.EventRemove,
		Index:      h.index.Name(),
		DocumentID: id,
		Strategy:   string(h.index.Kind()),
		LatencyMs:  time.Since(start).Milliseconds(),
		RequestID:  middleware.GetRequestID(ctx),
	})

	log.Info("document removed", "doc_id", id)
	h.writeJSON(w, http.StatusOK, ingest.Receipt{DocumentID: id, Status: string(registry.StatusRemoved)})
}

// Search runs a query against the index and returns ranked document ids.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	opts, err := h.parseSearchOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, finish := h.span(ctx, "http.search")
	defer finish()
	if span := tracing.SpanFromContext(ctx); span != nil {
		span.SetAttr("query", query)
		span.SetAttr("mode", string(opts.Combinator))
	}

	var ids []string
	err = resilience.WithTimeout(ctx, h.search.QueryTimeout, "search", func(ctx context.Context) error {
		if h.tracing {
			var span *tracing.Span
			ctx, span = tracing.StartChildSpan(ctx, "engine.search")
			defer span.End()
		}
		var searchErr error
		ids, searchErr = h.index.Search(ctx, query, opts)
		return searchErr
	})
	latency := time.Since(start)

	if err != nil {
		h.countQuery("error")
		status := h.statusFor(err)
		if status == http.StatusBadRequest {
			h.writeError(w, status, err.Error())
			return
		}
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, status, "search failed")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	outcome := "ok"
	if len(ids) == 0 {
		outcome = "zero_result"
	}
	h.countQuery(outcome)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(string(opts.Combinator)).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(ids)))
	}
	h.collector.TrackSearch(analytics.SearchEvent{
		Index:     h.index.Name(),
		Query:     query,
		Mode:      string(opts.Combinator),
		Hits:      len(ids),
		From:      opts.From,
		To:        opts.To,
		LatencyMs: latency.Milliseconds(),
		RequestID: middleware.GetRequestID(ctx),
	})

	log.Info("search completed",
		"query", query,
		"hits", len(ids),
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query: query,
		Mode:  string(opts.Combinator),
		IDs:   ids,
		Count: len(ids),
		From:  opts.From,
		To:    opts.To,
	})
}

// CacheStats reports combination-cache counters for typeahead indexes.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.index.Kind() != engine.KindTypeahead {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.index.CacheStats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops every cached combination for the index.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.index.Kind() != engine.KindTypeahead {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	removed, err := h.index.InvalidateCache(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, h.statusFor(err), "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"keys_removed": removed,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseSearchOptions reads mode, match, from, and to query parameters,
// capping unbounded and oversized windows at the configured maximum.
func (h *Handler) parseSearchOptions(r *http.Request) (engine.SearchOptions, error) {
	opts := engine.DefaultSearchOptions()
	q := r.URL.Query()

	if mode := q.Get("mode"); mode != "" {
		comb, err := engine.ParseCombinator(mode)
		if err != nil {
			return opts, fmt.Errorf("invalid mode %q: use and, or, intersect, or union", mode)
		}
		opts.Combinator = comb
	}
	if match := q.Get("match"); match != "" {
		kind, err := engine.ParseKind(match)
		if err != nil {
			return opts, fmt.Errorf("invalid match %q: use phonetic or typeahead", match)
		}
		opts.Match = kind
	}
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, errors.New("from must be an integer")
		}
		opts.From = n
	}
	if v := q.Get("to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, errors.New("to must be an integer")
		}
		opts.To = n
	}

	if max := int64(h.search.MaxResults); max > 0 && opts.From >= 0 {
		switch {
		case opts.To == -1:
			opts.To = opts.From + max - 1
		case opts.To >= opts.From && opts.To-opts.From+1 > max:
			opts.To = opts.From + max - 1
		}
	}
	return opts, nil
}

// recordIndexed upserts the registry row for a synchronously indexed
// document. Registry failures are logged, not surfaced; the index write
// already succeeded.
func (h *Handler) recordIndexed(ctx context.Context, doc ingest.Document, log *slog.Logger) {
	if h.registry == nil {
		return
	}
	err := h.registry.Upsert(ctx, registry.Document{
		ID:          doc.ID,
		ContentHash: ingest.ContentHash(doc.Text),
		ContentSize: int64(len(doc.Text)),
		Strategy:    string(h.index.Kind()),
		Status:      registry.StatusIndexed,
	})
	if err != nil {
		log.Warn("registry update failed", "doc_id", doc.ID, "error", err)
	}
}

// span starts a root span when tracing is enabled. The finish func ends and
// logs the span tree.
func (h *Handler) span(ctx context.Context, name string) (context.Context, func()) {
	if !h.tracing {
		return ctx, func() {}
	}
	ctx, span := tracing.StartSpan(ctx, name, middleware.GetRequestID(ctx))
	return ctx, func() {
		span.End()
		span.Log()
	}
}

// statusFor maps an error to an HTTP status, treating open circuits and
// exceeded deadlines as temporary unavailability.
func (h *Handler) statusFor(err error) int {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return apperrors.HTTPStatusCode(err)
	}
}

func (h *Handler) countQuery(outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var vErr *ingest.ValidationError
	if errors.As(err, &vErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": vErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
