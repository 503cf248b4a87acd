package tracing

import (
	"context"
	"testing"
	"time"
)

func TestStartSpanStoresInContext(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "http.search", "req-1")
	if got := SpanFromContext(ctx); got != span {
		t.Fatal("context does not carry the started span")
	}
	if span.traceID != "req-1" {
		t.Fatalf("traceID = %q, want %q", span.traceID, "req-1")
	}
}

func TestChildSpanInheritsTrace(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "http.search", "req-2")
	childCtx, child := StartChildSpan(ctx, "engine.search")

	if child.traceID != "req-2" {
		t.Fatalf("child traceID = %q, want %q", child.traceID, "req-2")
	}
	if len(parent.children) != 1 || parent.children[0] != child {
		t.Fatalf("parent has children %v, want the one child", parent.children)
	}
	if got := SpanFromContext(childCtx); got != child {
		t.Fatal("child context does not carry the child span")
	}
	// The parent's context still resolves to the parent.
	if got := SpanFromContext(ctx); got != parent {
		t.Fatal("parent context no longer carries the parent span")
	}
}

func TestChildSpanWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	if span == nil {
		t.Fatal("no span returned")
	}
	if span.traceID != "" {
		t.Fatalf("orphan traceID = %q, want empty", span.traceID)
	}
}

func TestSpanFromContextAbsent(t *testing.T) {
	if got := SpanFromContext(context.Background()); got != nil {
		t.Fatalf("SpanFromContext on bare context = %v, want nil", got)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "req-3")
	span.End()
	first := span.end
	time.Sleep(5 * time.Millisecond)
	span.End()
	if !span.end.Equal(first) {
		t.Fatalf("second End moved the end time from %v to %v", first, span.end)
	}
}

func TestSetAttrPreservesOrder(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "req-4")
	span.SetAttr("query", "hello world")
	span.SetAttr("mode", "and")

	if len(span.attrs) != 2 {
		t.Fatalf("attrs = %v, want 2 entries", span.attrs)
	}
	if span.attrs[0].Key != "query" || span.attrs[1].Key != "mode" {
		t.Fatalf("attr order = [%s %s], want [query mode]", span.attrs[0].Key, span.attrs[1].Key)
	}
}

func TestLogWalksTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "http.search", "req-5")
	_, child := StartChildSpan(ctx, "engine.search")
	child.SetAttr("terms", 3)
	child.End()
	root.End()

	// Logging must not panic or deadlock on a finished tree.
	root.Log()
}
