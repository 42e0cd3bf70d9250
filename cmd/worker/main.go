// Command worker runs the ingestion and visualization coordinators off
// their NATS job subjects (spec §4.1/§4.6). The host's autoscale bounds are
// computed and logged at startup; they do not limit concurrency.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/ingest"
	"github.com/flightdv/corepipeline/engine/progress"
	"github.com/flightdv/corepipeline/engine/visualize"
	"github.com/flightdv/corepipeline/pkg/autoscale"
	"github.com/flightdv/corepipeline/pkg/config"
	"github.com/flightdv/corepipeline/pkg/metrics"
	"github.com/flightdv/corepipeline/pkg/objectstore"
	"github.com/flightdv/corepipeline/pkg/repo"
	"github.com/flightdv/corepipeline/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	minWorkers, maxWorkers := autoscale.Bounds()
	logger.Info("worker pool bounds", "min", minWorkers, "max", maxWorkers)

	met := metrics.New()
	met.ServeAsync(9100)

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint: cfg.S3Endpoint, Region: cfg.S3Region,
		AccessKey: cfg.S3AccessKey, SecretKey: cfg.S3SecretKey,
		Bucket: cfg.S3Bucket, UseSSL: cfg.S3UseSSL,
	})
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		logger.Warn("ensure bucket failed, continuing", "error", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	ingestJobs := repo.NewPostgresRepo[domain.IngestionJob, string](pool, "ingestion_jobs",
		func(j domain.IngestionJob) string { return j.ID },
		func(j domain.IngestionJob) string { return j.ProjectID })
	vizJobs := repo.NewPostgresRepo[domain.VisualizationJob, string](pool, "visualizations",
		func(j domain.VisualizationJob) string { return j.ID },
		func(j domain.VisualizationJob) string { return j.ProjectID })

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	prog, err := progress.New(ctx, nc)
	if err != nil {
		logger.Warn("jetstream kv unavailable, falling back to events-only progress", "error", err)
		prog = progress.NewEventsOnly(nc)
	}

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)

	ingestDeps := ingest.Deps{
		Objects: objects, Jobs: ingestJobs, Progress: prog,
		Metrics: met, Breaker: breaker, Logger: logger,
	}
	vizDeps := visualize.Deps{
		Objects: objects, Jobs: vizJobs, IngestJobs: ingestJobs, Progress: prog,
		Metrics: met, Breaker: breaker, Logger: logger, Endpoint: "http://" + cfg.ZoomAddr,
	}

	ingestSub, err := ingest.StartConsumer(nc, ingestDeps)
	if err != nil {
		return err
	}
	defer ingestSub.Unsubscribe()

	vizSub, err := visualize.StartConsumer(nc, vizDeps)
	if err != nil {
		return err
	}
	defer vizSub.Unsubscribe()

	logger.Info("worker started", "ingest_subject", ingest.JobSubject, "visualize_subject", visualize.JobSubject)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = met.Shutdown(shutdownCtx)
	return nil
}
