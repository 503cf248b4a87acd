package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kersley/resound/internal/registry"
	"github.com/kersley/resound/pkg/kafka"
)

// EventWriter is the publish surface of pkg/kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

var _ EventWriter = (*kafka.Producer)(nil)

// Publisher records accepted documents in the registry and enqueues them on
// the ingest topic for the indexing worker. Registry writes are best-effort;
// a degraded registry must not block ingestion.
type Publisher struct {
	events   EventWriter
	registry registry.Registry
	strategy string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher. reg may be nil when the registry is
// disabled.
func NewPublisher(events EventWriter, reg registry.Registry, strategy string) *Publisher {
	return &Publisher{
		events:   events,
		registry: reg,
		strategy: strategy,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Enqueue registers doc as PENDING and publishes its ingest event. The
// caller is expected to have validated doc already.
func (p *Publisher) Enqueue(ctx context.Context, doc Document) (*Receipt, error) {
	p.register(ctx, doc)

	event := kafka.Event{
		Key: doc.ID,
		Value: Event{
			DocumentID: doc.ID,
			Text:       doc.Text,
			EnqueuedAt: time.Now().UTC(),
		},
	}
	if err := p.events.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing ingest event for %s: %w", doc.ID, err)
	}
	return &Receipt{DocumentID: doc.ID, Status: string(registry.StatusPending)}, nil
}

// EnqueueBatch registers and publishes a batch of documents in one producer
// write. Receipts are returned in input order.
func (p *Publisher) EnqueueBatch(ctx context.Context, docs []Document) ([]Receipt, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	events := make([]kafka.Event, 0, len(docs))
	receipts := make([]Receipt, 0, len(docs))
	for _, doc := range docs {
		p.register(ctx, doc)
		events = append(events, kafka.Event{
			Key: doc.ID,
			Value: Event{
				DocumentID: doc.ID,
				Text:       doc.Text,
				EnqueuedAt: now,
			},
		})
		receipts = append(receipts, Receipt{DocumentID: doc.ID, Status: string(registry.StatusPending)})
	}
	if err := p.events.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing %d ingest events: %w", len(events), err)
	}
	return receipts, nil
}

func (p *Publisher) register(ctx context.Context, doc Document) {
	if p.registry == nil {
		return
	}
	err := p.registry.Upsert(ctx, registry.Document{
		ID:          doc.ID,
		ContentHash: ContentHash(doc.Text),
		ContentSize: int64(len(doc.Text)),
		Strategy:    p.strategy,
		Status:      registry.StatusPending,
	})
	if err != nil {
		p.logger.Warn("registry upsert failed", "doc_id", doc.ID, "error", err)
	}
}
