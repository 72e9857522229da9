package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gbmarques/dicomflow/internal/api"
	"github.com/gbmarques/dicomflow/internal/config"
	"github.com/gbmarques/dicomflow/internal/queue"
	"github.com/gbmarques/dicomflow/internal/ratelimit"
	"github.com/gbmarques/dicomflow/internal/storage"
	"github.com/gbmarques/dicomflow/internal/store"
	"github.com/gbmarques/dicomflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:    "dicomflow-api",
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	batchStore := openBatchStore(cfg, logger)

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

	app := api.NewServer(logger, queueClient, batchStore, storageClient, 15*time.Minute)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	if limiter, err := ratelimit.NewRedisTokenBucket(redisClient, 30, time.Minute, ""); err != nil {
		logger.Printf("rate limiter disabled: %v", err)
	} else {
		app.SetRateLimiter(limiter, "X-User-ID")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.MetricsHandler())
	mux.Handle("/", app.Handler())

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

// openBatchStore prefers Postgres and falls back to the in-memory store so
// the API stays usable in local development without a database.
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
