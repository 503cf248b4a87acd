// Package tracing provides request-scoped span trees logged through slog.
// Spans carry the request id as their trace id and record per-operation
// timings without an external collector.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed operation in a trace tree.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	children []*Span
	attrs    []slog.Attr
}

// StartSpan begins a root span identified by traceID and returns a context
// carrying it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan begins a span nested under the one in ctx. Without a
// parent the child starts a tree of its own.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{name: name, start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// SetAttr records a key-value attribute on the span. Attributes appear in
// the logged line in the order they were set.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// End marks the span finished. Calling End again has no effect.
func (s *Span) End() {
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.mu.Unlock()
}

// Log writes the span and its descendants to slog, one line per span.
func (s *Span) Log() {
	s.log(0)
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	d := time.Since(s.start)
	if !s.end.IsZero() {
		d = s.end.Sub(s.start)
	}
	attrs := make([]slog.Attr, 0, len(s.attrs)+4)
	attrs = append(attrs,
		slog.String("trace_id", s.traceID),
		slog.String("span", s.name),
		slog.Float64("duration_ms", float64(d.Microseconds())/1000),
		slog.Int("depth", depth),
	)
	attrs = append(attrs, s.attrs...)
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	slog.LogAttrs(context.Background(), slog.LevelInfo, "span", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
