package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gbmarques/dicomflow/internal/config"
	"github.com/gbmarques/dicomflow/internal/pipeline"
	"github.com/gbmarques/dicomflow/internal/storage"
	"github.com/gbmarques/dicomflow/internal/store"
	"github.com/gbmarques/dicomflow/internal/telemetry"
	"github.com/gbmarques/dicomflow/internal/webhook"
	"github.com/gbmarques/dicomflow/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:    "dicomflow-worker",
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("image runtime init failed: %v", err)
	}
	defer pipeline.Shutdown()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("storage client init failed: %v", err)
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storageClient.EnsureBucket(bucketCtx); err != nil {
		logger.Printf("bucket check failed bucket=%s err=%v", storageClient.Bucket(), err)
	}
	cancelBucket()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	batchStore := openBatchStore(cfg, logger)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, storageClient, webhookClient, batchStore, nil)
	if err != nil {
		logger.Fatalf("worker init failed: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_batches=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveBatches,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}

func openBatchStore(cfg config.Config, logger *log.Logger) store.BatchStore {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pg, err := store.NewPostgresBatchStore(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Printf("postgres unavailable, using in-memory batch store: %v", err)
		return store.NewMemoryBatchStore()
	}
	return pg
}
