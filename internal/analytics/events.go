// Package analytics carries the search and document lifecycle event schema
// and both ends of the pipeline: a batched Kafka emitter used by the serving
// path, and the consuming side's rolling aggregator with optional PostgreSQL
// snapshots behind an HTTP stats API. Events are observational only; no
// handler blocks on them.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventIndex  EventType = "index_document"
	EventRemove EventType = "remove_document"
)

// SearchEvent records one query against an index.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Index     string    `json:"index"`
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Hits      int       `json:"hits"`
	From      int64     `json:"from"`
	To        int64     `json:"to"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// DocumentEvent records an index or remove operation for one document.
type DocumentEvent struct {
	Type       EventType `json:"type"`
	Index      string    `json:"index"`
	DocumentID string    `json:"document_id"`
	Strategy   string    `json:"strategy"`
	TermCount  int       `json:"term_count,omitempty"`
	SizeBytes  int       `json:"size_bytes,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}
