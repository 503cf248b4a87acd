// Command analyticsd aggregates search activity.
//
// analyticsd consumes the analytics events published by searchd and indexd
// and keeps rolling statistics: query volume, latency percentiles, top and
// zero-hit queries, document churn. The aggregate is served at
// GET /api/v1/analytics/stats; when PostgreSQL is available, snapshots are
// persisted on an interval and the latest one is served at
// GET /api/v1/analytics/snapshot.
//
// Usage:
//
//	go run ./cmd/analyticsd [-config configs/development.yaml]
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
	"time"

	"github.com/kersley/resound/internal/analytics"
	"github.com/kersley/resound/pkg/config"
	"github.com/kersley/resound/pkg/health"
	"github.com/kersley/resound/pkg/kafka"
	"github.com/kersley/resound/pkg/logger"
	"github.com/kersley/resound/pkg/metrics"
	"github.com/kersley/resound/pkg/middleware"
	"github.com/kersley/resound/pkg/postgres"
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

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topics.AnalyticsEvents == "" {
		fmt.Fprintln(os.Stderr, "analyticsd requires kafka brokers and an analytics events topic")
		os.Exit(1)
	}
	slog.Info("starting analytics service",
		"port", cfg.Server.Port,
		"topic", cfg.Kafka.Topics.AnalyticsEvents,
	)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()

	snapshots, db := newSnapshotStore(ctx, cfg)
	snapshotDone := make(chan struct{})
	if db != nil {
		defer db.Close()
		go func() {
			defer close(snapshotDone)
			snapshotLoop(ctx, snapshots, agg, cfg.Analytics.SnapshotInterval)
		}()
	} else {
		close(snapshotDone)
	}

	checker := health.NewChecker()
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	handler := analytics.NewHandler(agg, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", handler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", handler.Snapshot)
	mux.HandleFunc("GET /health", checker.ReadyHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID()(chain)

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
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
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Wait for the final shutdown snapshot before the database closes.
	<-snapshotDone
	slog.Info("analytics service stopped")
}

// newSnapshotStore connects snapshot persistence when PostgreSQL is enabled.
// Unavailable persistence degrades to in-memory stats only.
func newSnapshotStore(ctx context.Context, cfg *config.Config) (*analytics.SnapshotStore, *postgres.Client) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshot persistence disabled", "error", err)
		return nil, nil
	}
	store := analytics.NewSnapshotStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		slog.Warn("snapshot schema setup failed, snapshot persistence disabled", "error", err)
		return nil, nil
	}
	slog.Info("snapshot persistence enabled", "database", cfg.Postgres.Database)
	return store, db
}

// snapshotLoop persists the aggregate every interval and once more on
// shutdown.
func snapshotLoop(ctx context.Context, store *analytics.SnapshotStore, agg *analytics.Aggregator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	save := func(ctx context.Context) {
		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Save(saveCtx, agg.Stats()); err != nil {
			slog.Error("snapshot save failed", "error", err)
		}
	}

	for {
		select {
		case <-ticker.C:
			save(ctx)
		case <-ctx.Done():
			save(context.Background())
			return
		}
	}
}
