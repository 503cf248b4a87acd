// Command indexd starts the indexing worker.
//
// indexd consumes document events from Kafka and applies each one to the
// Redis index, retrying transient store failures with backoff. When the
// PostgreSQL registry is enabled the outcome of every event is recorded
// there. Offsets are committed only after an event is indexed or rejected
// as malformed, so transient failures are redelivered.
//
// Usage:
//
//	go run ./cmd/indexd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kersley/resound/internal/engine"
	"github.com/kersley/resound/internal/ingest"
	"github.com/kersley/resound/internal/registry"
	"github.com/kersley/resound/pkg/config"
	"github.com/kersley/resound/pkg/kafka"
	"github.com/kersley/resound/pkg/logger"
	"github.com/kersley/resound/pkg/metrics"
	"github.com/kersley/resound/pkg/postgres"
	"github.com/kersley/resound/pkg/redis"
	"github.com/kersley/resound/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexing worker",
		"index", cfg.Index.Name,
		"strategy", cfg.Index.Strategy,
	)

	m := metrics.New()

	store, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	index, err := engine.New(cfg.Index, store)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, db := newRegistry(ctx, cfg, m)
	if db != nil {
		defer db.Close()
	}

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
	}

	handler := ingest.HandleEvent(index, reg, resilience.RetryConfig{
		MaxAttempts:  cfg.Ingest.MaxRetries,
		InitialDelay: cfg.Ingest.RetryBackoff,
	}, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, handler)

	slog.Info("indexing worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexing worker stopped")
}

// newRegistry connects the PostgreSQL document registry when it is enabled,
// wrapped in a circuit breaker that exports its state as a gauge. A disabled
// or unreachable registry yields nil and event outcomes go unrecorded.
func newRegistry(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (registry.Registry, *postgres.Client) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document registry disabled", "error", err)
		return nil, nil
	}
	pgStore := registry.NewStore(db)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		db.Close()
		slog.Warn("registry schema setup failed, document registry disabled", "error", err)
		return nil, nil
	}
	cb := resilience.NewCircuitBreaker("registry", resilience.CircuitBreakerConfig{})
	cb.OnStateChange(func(s resilience.State) {
		m.CircuitBreakerState.WithLabelValues("registry").Set(float64(s))
	})
	slog.Info("document registry enabled", "database", cfg.Postgres.Database)
	return registry.Guard(pgStore, cb), db
}
