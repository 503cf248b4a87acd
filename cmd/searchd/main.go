// Command searchd starts the search service.
//
// searchd owns the HTTP API: synchronous document indexing, bulk enqueueing
// to Kafka, search queries, cache control, and registry status lookups.
// Redis is required. PostgreSQL and Kafka are optional; the endpoints that
// depend on them answer 503 while they are disabled or unreachable.
//
// Usage:
//
//	go run ./cmd/searchd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kersley/resound/internal/analytics"
	"github.com/kersley/resound/internal/engine"
	"github.com/kersley/resound/internal/httpapi"
	"github.com/kersley/resound/internal/ingest"
	"github.com/kersley/resound/internal/registry"
	"github.com/kersley/resound/pkg/config"
	"github.com/kersley/resound/pkg/health"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
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

	// Kafka is optional: without brokers the bulk endpoint answers 503 and
	// analytics events are dropped.
	var publisher *ingest.Publisher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.DocumentIngest != "" {
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ingestProducer.Close()
		publisher = ingest.NewPublisher(ingestProducer, reg, cfg.Index.Strategy)
		slog.Info("bulk ingestion enabled", "topic", cfg.Kafka.Topics.DocumentIngest)
	}

	var collector *analytics.Collector
	if cfg.Analytics.Enabled && len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.AnalyticsEvents != "" {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(store.Ping))
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	h := httpapi.New(index, publisher, reg, collector, m, cfg.Search, cfg.Tracing.Enabled)
	chain := httpapi.NewRouter(h, m, checker, cfg.Server.WriteTimeout)

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// newRegistry connects the PostgreSQL document registry when it is enabled,
// wrapped in a circuit breaker that exports its state as a gauge. A disabled
// or unreachable registry yields nil and the service degrades gracefully.
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
