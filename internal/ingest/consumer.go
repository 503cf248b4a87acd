package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kersley/resound/internal/registry"
	"github.com/kersley/resound/pkg/kafka"
	"github.com/kersley/resound/pkg/metrics"
	"github.com/kersley/resound/pkg/resilience"
)

// Indexer is the engine surface the consumer drives.
type Indexer interface {
	Set(ctx context.Context, id, text string) error
}

// HandleEvent returns the Kafka MessageHandler for the ingest topic.
//
// Malformed events are logged and committed so a poison message cannot wedge
// the partition. Index failures are retried with backoff; after the final
// attempt the document is marked FAILED and the error is returned, leaving
// the offset uncommitted. reg and m may be nil.
func HandleEvent(idx Indexer, reg registry.Registry, retryCfg resilience.RetryConfig, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			logger.Error("dropping undecodable ingest event",
				"key", string(key),
				"error", err,
			)
			countEvent(m, "malformed")
			return nil
		}

		logger.Debug("processing ingest event", "doc_id", event.DocumentID)

		err = resilience.Retry(ctx, "index-document", retryCfg, func() error {
			return idx.Set(ctx, event.DocumentID, event.Text)
		})
		if err != nil {
			recordStatus(ctx, reg, event.DocumentID, err, logger)
			countEvent(m, "failed")
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}

		recordStatus(ctx, reg, event.DocumentID, nil, logger)
		countEvent(m, "ok")
		if m != nil {
			m.DocsIndexedTotal.Inc()
		}
		logger.Info("document indexed", "doc_id", event.DocumentID)
		return nil
	}
}

// recordStatus updates the registry row for id after an indexing attempt.
// Failures are logged, not returned; the registry trails the index rather
// than gating it.
func recordStatus(ctx context.Context, reg registry.Registry, id string, indexErr error, logger *slog.Logger) {
	if reg == nil {
		return
	}
	var err error
	if indexErr == nil {
		err = reg.MarkIndexed(ctx, id)
	} else {
		err = reg.MarkFailed(ctx, id, indexErr.Error())
	}
	if err != nil {
		logger.Error("failed to record document status", "doc_id", id, "error", err)
	}
}

func countEvent(m *metrics.Metrics, status string) {
	if m == nil {
		return
	}
	m.IngestEventsTotal.WithLabelValues(status).Inc()
}
