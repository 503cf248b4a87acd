// Package ingest defines the document submission pipeline: the request and
// Kafka event schemas, validation shared by both services, the publisher
// that enqueues accepted documents, and the consumer handler that indexes
// them.
package ingest

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Document is the JSON body accepted by the document endpoints.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Event is the Kafka message payload for a document accepted for
// asynchronous indexing.
type Event struct {
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Receipt is returned to the caller after a document is accepted.
type Receipt struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// ContentHash returns the hex SHA-256 of a document's text, used by the
// registry to detect content changes without storing the text.
func ContentHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}
