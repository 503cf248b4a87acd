package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kersley/resound/internal/registry"
	apperrors "github.com/kersley/resound/pkg/errors"
	"github.com/kersley/resound/pkg/kafka"
	"github.com/kersley/resound/pkg/resilience"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeWriter struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   error
}

func (w *fakeWriter) Publish(ctx context.Context, event kafka.Event) error {
	return w.PublishBatch(ctx, []kafka.Event{event})
}

func (w *fakeWriter) PublishBatch(ctx context.Context, events []kafka.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.events = append(w.events, events...)
	return nil
}

type fakeIndexer struct {
	calls    int
	failUpTo int
	lastID   string
	lastText string
}

func (f *fakeIndexer) Set(ctx context.Context, id, text string) error {
	f.calls++
	f.lastID, f.lastText = id, text
	if f.calls <= f.failUpTo {
		return errors.New("redis: connection refused")
	}
	return nil
}

type memRegistry struct {
	mu   sync.Mutex
	rows map[string]registry.Document
	fail error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{rows: make(map[string]registry.Document)}
}

func (r *memRegistry) Upsert(ctx context.Context, doc registry.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if doc.Status == "" {
		doc.Status = registry.StatusPending
	}
	r.rows[doc.ID] = doc
	return nil
}

func (r *memRegistry) MarkIndexed(ctx context.Context, id string) error {
	return r.setStatus(id, registry.StatusIndexed, "")
}

func (r *memRegistry) MarkFailed(ctx context.Context, id string, cause string) error {
	return r.setStatus(id, registry.StatusFailed, cause)
}

func (r *memRegistry) MarkRemoved(ctx context.Context, id string) error {
	return r.setStatus(id, registry.StatusRemoved, "")
}

func (r *memRegistry) setStatus(id string, status registry.Status, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	doc, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	doc.Status = status
	doc.LastError = cause
	r.rows[id] = doc
	return nil
}

func (r *memRegistry) Get(ctx context.Context, id string) (*registry.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	return &doc, nil
}

func (r *memRegistry) CountByStatus(ctx context.Context) (map[registry.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[registry.Status]int64)
	for _, doc := range r.rows {
		counts[doc.Status]++
	}
	return counts, nil
}

func (r *memRegistry) statusOf(t *testing.T, id string) registry.Document {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.rows[id]
	if !ok {
		t.Fatalf("no registry row for %s", id)
	}
	return doc
}

func encodeEvent(t *testing.T, ev Event) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	return data
}

var fastRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 1,
	MaxDelay:     1,
}

// ---------------------------------------------------------------------------
// Publisher
// ---------------------------------------------------------------------------

func TestEnqueueRegistersAndPublishes(t *testing.T) {
	writer := &fakeWriter{}
	reg := newMemRegistry()
	pub := NewPublisher(writer, reg, "phonetic")

	receipt, err := pub.Enqueue(context.Background(), Document{ID: "d1", Text: "hello world"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if receipt.DocumentID != "d1" || receipt.Status != "PENDING" {
		t.Fatalf("receipt = %+v", receipt)
	}

	if len(writer.events) != 1 {
		t.Fatalf("published %d events, want 1", len(writer.events))
	}
	if writer.events[0].Key != "d1" {
		t.Errorf("event key = %q, want document id", writer.events[0].Key)
	}
	ev, ok := writer.events[0].Value.(Event)
	if !ok {
		t.Fatalf("event value has type %T", writer.events[0].Value)
	}
	if ev.DocumentID != "d1" || ev.Text != "hello world" || ev.EnqueuedAt.IsZero() {
		t.Fatalf("event payload = %+v", ev)
	}

	row := reg.statusOf(t, "d1")
	if row.Status != registry.StatusPending {
		t.Errorf("registry status = %s, want PENDING", row.Status)
	}
	if row.ContentHash != ContentHash("hello world") || row.ContentSize != int64(len("hello world")) {
		t.Errorf("registry content fields = %+v", row)
	}
	if row.Strategy != "phonetic" {
		t.Errorf("registry strategy = %q", row.Strategy)
	}
}

func TestEnqueueBatchPreservesOrder(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer, nil, "typeahead")

	docs := []Document{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "c", Text: "third"},
	}
	receipts, err := pub.EnqueueBatch(context.Background(), docs)
	if err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	if len(receipts) != 3 {
		t.Fatalf("got %d receipts, want 3", len(receipts))
	}
	for i, doc := range docs {
		if receipts[i].DocumentID != doc.ID {
			t.Errorf("receipt %d is for %s, want %s", i, receipts[i].DocumentID, doc.ID)
		}
		if writer.events[i].Key != doc.ID {
			t.Errorf("event %d key = %q, want %s", i, writer.events[i].Key, doc.ID)
		}
	}
}

func TestEnqueueBatchEmptyIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisher(writer, nil, "phonetic")

	receipts, err := pub.EnqueueBatch(context.Background(), nil)
	if err != nil || receipts != nil {
		t.Fatalf("EnqueueBatch(nil) = %v, %v", receipts, err)
	}
	if len(writer.events) != 0 {
		t.Fatalf("empty batch still published %d events", len(writer.events))
	}
}

func TestEnqueueSurvivesRegistryFailure(t *testing.T) {
	writer := &fakeWriter{}
	reg := newMemRegistry()
	reg.fail = errors.New("postgres down")
	pub := NewPublisher(writer, reg, "phonetic")

	receipt, err := pub.Enqueue(context.Background(), Document{ID: "d1", Text: "hello"})
	if err != nil {
		t.Fatalf("Enqueue with dead registry: %v", err)
	}
	if receipt.Status != "PENDING" {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(writer.events) != 1 {
		t.Fatalf("published %d events, want 1", len(writer.events))
	}
}

func TestEnqueueFailsWhenPublishFails(t *testing.T) {
	boom := errors.New("broker down")
	writer := &fakeWriter{fail: boom}
	pub := NewPublisher(writer, nil, "phonetic")

	if _, err := pub.Enqueue(context.Background(), Document{ID: "d1", Text: "hello"}); !errors.Is(err, boom) {
		t.Fatalf("Enqueue = %v, want wrapped broker error", err)
	}
}

// ---------------------------------------------------------------------------
// Consumer handler
// ---------------------------------------------------------------------------

func TestHandleEventIndexesDocument(t *testing.T) {
	idx := &fakeIndexer{}
	reg := newMemRegistry()
	if err := reg.Upsert(context.Background(), registry.Document{ID: "d1"}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}
	handler := HandleEvent(idx, reg, fastRetry, nil)

	payload := encodeEvent(t, Event{DocumentID: "d1", Text: "hello world"})
	if err := handler(context.Background(), []byte("d1"), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if idx.calls != 1 || idx.lastID != "d1" || idx.lastText != "hello world" {
		t.Fatalf("indexer saw calls=%d id=%q text=%q", idx.calls, idx.lastID, idx.lastText)
	}
	if row := reg.statusOf(t, "d1"); row.Status != registry.StatusIndexed {
		t.Fatalf("registry status = %s, want INDEXED", row.Status)
	}
}

func TestHandleEventRetriesTransientFailure(t *testing.T) {
	idx := &fakeIndexer{failUpTo: 2}
	reg := newMemRegistry()
	if err := reg.Upsert(context.Background(), registry.Document{ID: "d1"}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}
	handler := HandleEvent(idx, reg, fastRetry, nil)

	payload := encodeEvent(t, Event{DocumentID: "d1", Text: "hello"})
	if err := handler(context.Background(), []byte("d1"), payload); err != nil {
		t.Fatalf("handler after transient failures: %v", err)
	}
	if idx.calls != 3 {
		t.Fatalf("indexer calls = %d, want 3 (two failures then success)", idx.calls)
	}
	if row := reg.statusOf(t, "d1"); row.Status != registry.StatusIndexed {
		t.Fatalf("registry status = %s, want INDEXED", row.Status)
	}
}

func TestHandleEventMarksFailedWhenRetriesExhausted(t *testing.T) {
	idx := &fakeIndexer{failUpTo: 100}
	reg := newMemRegistry()
	if err := reg.Upsert(context.Background(), registry.Document{ID: "d1"}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}
	handler := HandleEvent(idx, reg, fastRetry, nil)

	payload := encodeEvent(t, Event{DocumentID: "d1", Text: "hello"})
	err := handler(context.Background(), []byte("d1"), payload)
	if err == nil {
		t.Fatal("handler returned nil, want indexing error so the offset is not committed")
	}
	if idx.calls != fastRetry.MaxAttempts {
		t.Fatalf("indexer calls = %d, want %d", idx.calls, fastRetry.MaxAttempts)
	}

	row := reg.statusOf(t, "d1")
	if row.Status != registry.StatusFailed {
		t.Fatalf("registry status = %s, want FAILED", row.Status)
	}
	if row.LastError == "" {
		t.Error("registry row has no failure cause")
	}
}

func TestHandleEventSkipsMalformedPayload(t *testing.T) {
	idx := &fakeIndexer{}
	handler := HandleEvent(idx, nil, fastRetry, nil)

	if err := handler(context.Background(), []byte("k"), []byte("{not json")); err != nil {
		t.Fatalf("malformed payload should be committed, got %v", err)
	}
	if idx.calls != 0 {
		t.Fatalf("indexer was called %d times for a malformed payload", idx.calls)
	}
}

func TestHandleEventWithoutRegistry(t *testing.T) {
	idx := &fakeIndexer{}
	handler := HandleEvent(idx, nil, fastRetry, nil)

	payload := encodeEvent(t, Event{DocumentID: "d1", Text: "hello"})
	if err := handler(context.Background(), []byte("d1"), payload); err != nil {
		t.Fatalf("handler without registry: %v", err)
	}
	if idx.calls != 1 {
		t.Fatalf("indexer calls = %d, want 1", idx.calls)
	}
}
