package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/id"
	"github.com/gbmarques/dicomflow/internal/queue"
	"github.com/gbmarques/dicomflow/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	batchStore            store.BatchStore
	storage               objectStorage
	presignTTL            time.Duration
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueConvertBatch(ctx context.Context, payload queue.ConvertBatchPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, batchStore store.BatchStore, storage objectStorage, presignTTL time.Duration) *Server {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		batchStore:            batchStore,
		storage:               storage,
		presignTTL:            presignTTL,
		rateLimitUserIDHeader: "X-User-ID",
		metrics:               newMetrics(),
		tracer:                otel.Tracer("dicomflow/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

// SetRateLimiter enables per-subject request limiting on mutating routes.
func (s *Server) SetRateLimiter(limiter RateLimiter, userIDHeader string) {
	s.rateLimiter = limiter
	if strings.TrimSpace(userIDHeader) != "" {
		s.rateLimitUserIDHeader = userIDHeader
	}
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.metricsHandler()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	s.mux.HandleFunc("POST /v1/batches/", s.handleStartBatch)
	s.mux.HandleFunc("GET /v1/batches/", s.handleGetBatch)
	s.mux.HandleFunc("POST /v1/uploads", s.handleCreateUpload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	format, _ := domain.NormalizeFormat(req.Format)
	batch := domain.Batch{
		ID:         id.New(),
		Status:     domain.BatchStatusCreated,
		SourceType: strings.ToLower(strings.TrimSpace(req.SourceType)),
		Inputs:     req.Inputs,
		TargetRoot: strings.TrimSpace(req.TargetRoot),
		Format:     format,
		Anonymize:  req.Anonymize,
		AnonPaths:  req.AnonPaths,
		Sequential: req.Sequential,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.batchStore.Create(r.Context(), batch); err != nil {
		s.logger.Printf("create batch failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batch.ID,
		"status":    batch.Status,
		"format":    batch.Format,
		"start_url": fmt.Sprintf("/v1/batches/%s/start", batch.ID),
	})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed for batch %s: %v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	if err := s.verifySourcesExist(r.Context(), batch); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.ConvertBatchPayload{
		BatchID:     batch.ID,
		SourceType:  batch.SourceType,
		Inputs:      batch.Inputs,
		TargetRoot:  batch.TargetRoot,
		Format:      batch.Format,
		Anonymize:   batch.Anonymize,
		AnonPaths:   batch.AnonPaths,
		Sequential:  batch.Sequential,
		WebhookURL:  batch.WebhookURL,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueConvertBatch(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue batch"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.batchStore.UpdateStatus(r.Context(), batch.ID, domain.BatchStatusQueued); err != nil {
		s.logger.Printf("update status failed for batch %s: %v", batch.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batch.ID,
		"status":      domain.BatchStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed for batch %s: %v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id":    batch.ID,
		"status":      batch.Status,
		"source_type": batch.SourceType,
		"format":      batch.Format,
		"inputs":      batch.Inputs,
		"results":     batch.Results,
		"created_at":  batch.CreatedAt,
		"updated_at":  batch.UpdatedAt,
	})
}

type createUploadRequest struct {
	ObjectKey string `json:"object_key"`
}

// handleCreateUpload hands out a presigned PUT URL so datasets can be staged
// into the bucket before an object-store batch is created.
func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req createUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	objectKey := strings.TrimSpace(req.ObjectKey)
	if objectKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "object_key is required"})
		return
	}

	url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
	if err != nil {
		s.logger.Printf("generate presigned url failed for key %s: %v", objectKey, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object_key":        objectKey,
		"presigned_put_url": url,
		"expires_in":        int(s.presignTTL.Seconds()),
	})
}

// verifySourcesExist rejects a start request whose inputs cannot be reached.
// Local paths are checked with stat; object-store inputs are treated as
// prefixes, so only explicit dataset keys are verified here.
func (s *Server) verifySourcesExist(ctx context.Context, batch domain.Batch) error {
	switch batch.SourceType {
	case domain.SourceTypeLocalPath:
		for _, input := range batch.Inputs {
			if _, err := os.Stat(input); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("input path is missing: %s", input)
				}
				return fmt.Errorf("input path check failed: %w", err)
			}
		}
		return nil
	default:
		for _, input := range batch.Inputs {
			if !strings.HasSuffix(strings.ToLower(input), ".dcm") {
				continue
			}
			exists, err := s.storage.ObjectExists(ctx, input)
			if err != nil {
				return fmt.Errorf("input object check failed: %w", err)
			}
			if !exists {
				return fmt.Errorf("input object is missing: %s", input)
			}
		}
		return nil
	}
}

func extractBatchIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/batches/{id}/start")
	}
	return parts[0], nil
}

func extractBatchIDFromPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 1 || parts[0] == "" {
		return "", errors.New("expected path format /v1/batches/{id}")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
