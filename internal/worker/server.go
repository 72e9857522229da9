package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gbmarques/dicomflow/internal/batch"
	"github.com/gbmarques/dicomflow/internal/config"
	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/pipeline"
	"github.com/gbmarques/dicomflow/internal/queue"
	"github.com/gbmarques/dicomflow/internal/storage"
	"github.com/gbmarques/dicomflow/internal/store"
	"github.com/gbmarques/dicomflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultObjectTargetRoot = "exports"

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	localRunner   *batch.Runner
	objectRunner  *batch.Runner
	webhookClient webhookSender
	batchStore    store.BatchStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	batchStore store.BatchStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor()
	if err != nil {
		return nil, fmt.Errorf("initialize conversion processor: %w", err)
	}
	localRunner, err := batch.NewRunner(localProcessor, batch.LocalDiscoverer{}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize local runner: %w", err)
	}

	objectProcessor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.DatasetDecoder{},
		nil,
		pipeline.ObjectStoreEmitter{Storage: storageClient},
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}
	objectRunner, err := batch.NewRunner(objectProcessor, objectDiscoverer{storage: storageClient}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store runner: %w", err)
	}

	if usageStore == nil {
		if combined, ok := batchStore.(store.UsageStore); ok {
			usageStore = combined
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveBatches)),
		localRunner:   localRunner,
		objectRunner:  objectRunner,
		webhookClient: webhookClient,
		batchStore:    batchStore,
		usageStore:    usageStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("dicomflow/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertBatch, s.handleConvertBatch)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleConvertBatch(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.BatchStatusFailed

	payload, err := queue.ParseConvertBatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.convert_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("batch.source_type", payload.SourceType),
		attribute.Int("batch.inputs", len(payload.Inputs)),
		attribute.String("batch.format", payload.Format),
	)
	defer span.End()
	defer func() {
		s.metrics.batchDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.batchesTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeBatches.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeBatches.Dec()
	}()

	s.logger.Printf(
		"Working... batch_id=%s source_type=%s inputs=%d format=%s",
		payload.BatchID,
		payload.SourceType,
		len(payload.Inputs),
		payload.Format,
	)

	s.updateBatchStatus(ctx, payload.BatchID, domain.BatchStatusProcessing)

	opts := batch.Options{
		Inputs:     payload.Inputs,
		TargetRoot: payload.TargetRoot,
		Format:     payload.Format,
		Anonymize:  payload.Anonymize,
		AnonPaths:  payload.AnonPaths,
		Sequential: payload.Sequential,
	}

	runner := s.localRunner
	if payload.SourceType == domain.SourceTypeObjectStore {
		runner = s.objectRunner
		if opts.TargetRoot == "" {
			opts.TargetRoot = defaultObjectTargetRoot
		}
	}

	results, err := runner.Run(ctx, opts)
	if err != nil {
		s.updateBatchStatus(ctx, payload.BatchID, domain.BatchStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch validation failed")
		s.dispatchWebhook(ctx, payload, "batch.failed", map[string]any{
			"batch_id":     payload.BatchID,
			"status":       domain.BatchStatusFailed,
			"source_type":  payload.SourceType,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("run batch: %v: %w", err, asynq.SkipRetry)
	}

	summary := batch.Summarize(results)
	s.logger.Printf(
		"Processed batch_id=%s written=%d skipped=%d failed=%d",
		payload.BatchID,
		summary.Written,
		summary.Skipped,
		summary.Failed,
	)

	s.setBatchResults(ctx, payload.BatchID, results)
	s.metrics.filesTotal.WithLabelValues(domain.StatusWritten).Add(float64(summary.Written))
	s.metrics.filesTotal.WithLabelValues(domain.StatusSkipped).Add(float64(summary.Skipped))
	s.metrics.filesTotal.WithLabelValues(domain.StatusFailed).Add(float64(summary.Failed))
	s.recordUsage(ctx, payload.BatchID, summary, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "batch.completed", map[string]any{
		"batch_id":     payload.BatchID,
		"status":       domain.BatchStatusSucceeded,
		"source_type":  payload.SourceType,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"written":      summary.Written,
		"skipped":      summary.Skipped,
		"failed":       summary.Failed,
		"results":      results,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.BatchStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) updateBatchStatus(ctx context.Context, batchID, status string) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.UpdateStatus(ctx, batchID, status); err != nil {
		s.logger.Printf("batch status update failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) setBatchResults(ctx context.Context, batchID string, results []domain.Result) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.SetResults(ctx, batchID, domain.BatchStatusSucceeded, results); err != nil {
		s.logger.Printf("batch results update failed batch_id=%s err=%v", batchID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ConvertBatchPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed batch_id=%s event=%s err=%v", payload.BatchID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, batchID string, summary batch.Summary, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		BatchID:        batchID,
		FilesWritten:   int64(summary.Written),
		FilesSkipped:   int64(summary.Skipped),
		FilesFailed:    int64(summary.Failed),
		PixelsRendered: summary.Pixels,
		ComputeTimeMS:  computeTimeMS,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed batch_id=%s err=%v", batchID, err)
		return
	}

	s.metrics.pixelsRenderedTotal.Add(float64(summary.Pixels))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

// objectDiscoverer lists dataset objects under each input prefix.
type objectDiscoverer struct {
	storage *storage.Client
}

func (d objectDiscoverer) Files(ctx context.Context, inputs []string) ([]string, error) {
	var keys []string
	for _, prefix := range inputs {
		listed, err := d.storage.ListDatasetObjects(ctx, prefix)
		if err != nil {
			return nil, err
		}
		keys = append(keys, listed...)
	}
	sort.Strings(keys)
	return keys, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
