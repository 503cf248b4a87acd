package httpapi

import (
	"net/http"
	"time"

	"github.com/kersley/resound/pkg/health"
	"github.com/kersley/resound/pkg/metrics"
	"github.com/kersley/resound/pkg/middleware"
)

// NewRouter builds the service's HTTP handler with all routes and the
// middleware chain.
//
// Route table:
//
//	POST   /api/v1/documents          → index one document (synchronous)
//	POST   /api/v1/documents/bulk     → enqueue a batch for async indexing
//	GET    /api/v1/documents/stats    → registry counts by lifecycle phase
//	GET    /api/v1/documents/{id}     → registry status lookup
//	DELETE /api/v1/documents/{id}     → remove a document's terms
//	GET    /api/v1/search             → query the index
//	GET    /api/v1/cache/stats        → combination-cache counters
//	POST   /api/v1/cache/invalidate   → drop cached combinations
//	GET    /health                    → basic liveness
//	GET    /health/live               → checker liveness
//	GET    /health/ready              → checker readiness (store, registry)
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → Timeout → handler
//
// m and checker may be nil; requestTimeout <= 0 disables the timeout.
func NewRouter(h *Handler, m *metrics.Metrics, checker *health.Checker, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.Health)
	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	// Document API
	mux.HandleFunc("POST /api/v1/documents", h.IndexDocument)
	mux.HandleFunc("POST /api/v1/documents/bulk", h.BulkIndex)
	mux.HandleFunc("GET /api/v1/documents/stats", h.DocumentStats)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)

	// Search API
	mux.HandleFunc("GET /api/v1/search", h.Search)

	// Cache API
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	if requestTimeout > 0 {
		chain = middleware.Timeout(requestTimeout)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID()(chain)

	return chain
}
