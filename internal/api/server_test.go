package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/queue"
	"github.com/gbmarques/dicomflow/internal/store"
	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	payload queue.ConvertBatchPayload
	calls   int
}

func (f *fakeEnqueuer) EnqueueConvertBatch(_ context.Context, payload queue.ConvertBatchPayload) (*asynq.TaskInfo, error) {
	f.calls++
	f.payload = payload
	return &asynq.TaskInfo{
		ID:            "task-1",
		Queue:         "default",
		State:         asynq.TaskStatePending,
		NextProcessAt: time.Now().UTC(),
	}, nil
}

func newTestServer(t *testing.T) (*Server, *store.MemoryBatchStore, *fakeEnqueuer) {
	t.Helper()
	batchStore := store.NewMemoryBatchStore()
	enqueuer := &fakeEnqueuer{}
	s := NewServer(log.New(io.Discard, "", 0), enqueuer, batchStore, nil, time.Minute)
	return s, batchStore, enqueuer
}

func TestExtractBatchIDFromStartPath(t *testing.T) {
	batchID, err := extractBatchIDFromStartPath("/v1/batches/abc123/start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if batchID != "abc123" {
		t.Fatalf("expected abc123, got %s", batchID)
	}

	if _, err := extractBatchIDFromStartPath("/v1/batches/abc123"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestCreateBatchValidatesRequest(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"source_type":"local_path","inputs":["/data"],"format":"gif"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateBatchPersistsAndReturnsStartURL(t *testing.T) {
	s, batchStore, _ := newTestServer(t)

	body := `{"source_type":"local_path","inputs":["/data/study"],"format":"PNG"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		BatchID  string `json:"batch_id"`
		Status   string `json:"status"`
		Format   string `json:"format"`
		StartURL string `json:"start_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.BatchStatusCreated {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Format != "png" {
		t.Fatalf("format must be normalized, got %q", resp.Format)
	}
	if resp.StartURL != "/v1/batches/"+resp.BatchID+"/start" {
		t.Fatalf("start_url = %q", resp.StartURL)
	}

	if _, ok, _ := batchStore.Get(context.Background(), resp.BatchID); !ok {
		t.Fatal("batch was not persisted")
	}
}

func TestStartBatchEnqueues(t *testing.T) {
	s, batchStore, enqueuer := newTestServer(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "a.dcm")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	batch := domain.Batch{
		ID:         "b1",
		Status:     domain.BatchStatusCreated,
		SourceType: domain.SourceTypeLocalPath,
		Inputs:     []string{input},
		Format:     "png",
	}
	if err := batchStore.Create(context.Background(), batch); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/batches/b1/start", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if enqueuer.calls != 1 {
		t.Fatalf("enqueue calls = %d, want 1", enqueuer.calls)
	}
	if enqueuer.payload.BatchID != "b1" || enqueuer.payload.Format != "png" {
		t.Fatalf("unexpected payload %+v", enqueuer.payload)
	}

	got, _, _ := batchStore.Get(context.Background(), "b1")
	if got.Status != domain.BatchStatusQueued {
		t.Fatalf("status = %q, want queued", got.Status)
	}
}

func TestStartBatchMissingInputConflicts(t *testing.T) {
	s, batchStore, enqueuer := newTestServer(t)

	batch := domain.Batch{
		ID:         "b2",
		Status:     domain.BatchStatusCreated,
		SourceType: domain.SourceTypeLocalPath,
		Inputs:     []string{"/nonexistent/study"},
		Format:     "png",
	}
	if err := batchStore.Create(context.Background(), batch); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/batches/b2/start", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if enqueuer.calls != 0 {
		t.Fatal("batch with missing inputs must not be enqueued")
	}
}

func TestGetBatchReturnsResults(t *testing.T) {
	s, batchStore, _ := newTestServer(t)

	batch := domain.Batch{
		ID:         "b3",
		Status:     domain.BatchStatusSucceeded,
		SourceType: domain.SourceTypeLocalPath,
		Inputs:     []string{"/data"},
		Format:     "png",
		Results: []domain.Result{
			domain.Written("/data/a.dcm", "/data/1_1.png"),
		},
	}
	if err := batchStore.Create(context.Background(), batch); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/b3", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status  string          `json:"status"`
		Results []domain.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.BatchStatusSucceeded || len(resp.Results) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetUnknownBatchIsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateUploadRequiresObjectKey(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", strings.NewReader(`{"object_key":""}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
