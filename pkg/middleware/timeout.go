package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kersley/resound/pkg/logger"
)

// Timeout returns middleware that answers 504 when the handler does not
// respond within the given duration. A handler that already started writing
// keeps the connection; output arriving after the 504 is discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if tw.abort() {
					logger.FromContext(r.Context()).Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
					)
				}
			}
		})
	}
}

// timeoutWriter serializes access between the handler goroutine and the
// timeout response so neither writes over the other. The handler sees a
// private header map, copied to the network writer when the response
// starts, so its header writes cannot race with the timeout response.
type timeoutWriter struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	header   http.Header
	started  bool
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.started {
		return
	}
	tw.started = true
	tw.copyHeader()
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(b), nil
	}
	if !tw.started {
		tw.started = true
		tw.copyHeader()
	}
	return tw.w.Write(b)
}

// copyHeader moves the handler's headers onto the network writer. Callers
// hold tw.mu.
func (tw *timeoutWriter) copyHeader() {
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
}

// abort sends the 504 unless the handler already started responding. It
// reports whether the timeout response was written.
func (tw *timeoutWriter) abort() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.started {
		return false
	}
	tw.timedOut = true
	tw.w.Header().Set("Content-Type", "application/json")
	tw.w.WriteHeader(http.StatusGatewayTimeout)
	tw.w.Write([]byte(`{"error":"request timeout"}`))
	return true
}
