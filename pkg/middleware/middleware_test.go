package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kersley/resound/pkg/metrics"
)

// Metrics registers on the default Prometheus registry, so the package gets
// exactly one instance for all tests.
var testMetrics = metrics.New()

// -----------------------------------------------------------------------
// RequestID
// -----------------------------------------------------------------------

func TestRequestIDGenerated(t *testing.T) {
	var inHandler string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

	echoed := rec.Header().Get("X-Request-ID")
	if echoed == "" {
		t.Fatal("no X-Request-ID header on response")
	}
	if len(echoed) != 16 {
		t.Fatalf("generated id %q is not 16 hex characters", echoed)
	}
	if inHandler != echoed {
		t.Fatalf("handler saw id %q, response header has %q", inHandler, echoed)
	}
}

func TestRequestIDHonorsClient(t *testing.T) {
	var inHandler string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("X-Request-ID", "trace-abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-abc-123" {
		t.Fatalf("echoed id = %q, want %q", got, "trace-abc-123")
	}
	if inHandler != "trace-abc-123" {
		t.Fatalf("handler saw id %q, want %q", inHandler, "trace-abc-123")
	}
}

func TestGetRequestIDAbsent(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Fatalf("GetRequestID on bare context = %q, want empty", got)
	}
}

// -----------------------------------------------------------------------
// Timeout
// -----------------------------------------------------------------------

func TestTimeoutAllowsFastHandler(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestTimeoutCutsOffSlowHandler(t *testing.T) {
	h := Timeout(15 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
	if !strings.Contains(rec.Body.String(), "request timeout") {
		t.Fatalf("body = %q, want a timeout error", rec.Body.String())
	}
}

func TestTimeoutKeepsPartialResponse(t *testing.T) {
	wrote := make(chan struct{})
	h := Timeout(15 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		close(wrote)
		<-r.Context().Done()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	<-wrote

	// The handler already started responding, so no 504 may be layered on.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "request timeout") {
		t.Fatalf("timeout error written over a started response: %q", rec.Body.String())
	}
}

// -----------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------

func TestMetricsRecordsRequests(t *testing.T) {
	h := Metrics(testMetrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := testutil.ToFloat64(testMetrics.HTTPRequestsInFlight); got != 1 {
			t.Errorf("in-flight gauge during request = %v, want 1", got)
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

	counter := testMetrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/search", "418")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("request counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(testMetrics.HTTPRequestsInFlight); got != 0 {
		t.Fatalf("in-flight gauge after request = %v, want 0", got)
	}
}

func TestMetricsNormalizesDocumentPaths(t *testing.T) {
	h := Metrics(testMetrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/api/v1/documents/doc-1", "/api/v1/documents/doc-2/status"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	}

	counter := testMetrics.HTTPRequestsTotal.WithLabelValues(http.MethodDelete, "/api/v1/documents/:id", "204")
	if got := testutil.ToFloat64(counter); got != 2 {
		t.Fatalf("normalized counter = %v, want 2 (both document paths share one label)", got)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"/api/v1/documents/abc-123", "/api/v1/documents/:id"},
		{"/api/v1/documents/abc/status", "/api/v1/documents/:id"},
		{"/api/v1/documents/bulk", "/api/v1/documents/bulk"},
		{"/api/v1/documents/stats", "/api/v1/documents/stats"},
		{"/api/v1/documents/", "/api/v1/documents/"},
		{"/api/v1/documents", "/api/v1/documents"},
		{"/api/v1/search", "/api/v1/search"},
		{"/health", "/health"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestStatusWriterDefaultsTo200(t *testing.T) {
	h := Metrics(testMetrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("implicit ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/implicit", nil))

	counter := testMetrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/implicit", "200")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("counter for implicit 200 = %v, want 1", got)
	}
}
