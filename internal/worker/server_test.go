package worker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gbmarques/dicomflow/internal/batch"
	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/store"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "batch-1", batch.Summary{
		Written: 3,
		Skipped: 1,
		Failed:  2,
		Pixels:  512 * 512 * 3,
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.BatchID != "batch-1" {
		t.Fatalf("expected batch_id=batch-1, got %s", usageStore.log.BatchID)
	}
	if usageStore.log.FilesWritten != 3 || usageStore.log.FilesSkipped != 1 || usageStore.log.FilesFailed != 2 {
		t.Fatalf("unexpected file counts: %+v", usageStore.log)
	}
	if usageStore.log.PixelsRendered != 512*512*3 {
		t.Fatalf("expected pixels_rendered=%d, got %d", 512*512*3, usageStore.log.PixelsRendered)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageClampsComputeTime(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "batch-2", batch.Summary{Written: 1}, 0)

	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestSetBatchResultsPersists(t *testing.T) {
	batchStore := store.NewMemoryBatchStore()
	if err := batchStore.Create(context.Background(), domain.Batch{
		ID:         "batch-3",
		Status:     domain.BatchStatusProcessing,
		SourceType: domain.SourceTypeLocalPath,
		Format:     "png",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		batchStore: batchStore,
		metrics:    newMetrics(),
	}

	results := []domain.Result{
		domain.Written("a.dcm", "/out/1_1.png"),
		domain.Skipped("b.dcm", domain.SkipMultiframe, "multi-frame images are currently not supported"),
	}
	s.setBatchResults(context.Background(), "batch-3", results)

	got, ok, err := batchStore.Get(context.Background(), "batch-3")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.BatchStatusSucceeded {
		t.Fatalf("a completed batch is recorded as succeeded regardless of per-file outcomes, got %q", got.Status)
	}
	if len(got.Results) != 2 {
		t.Fatalf("expected 2 persisted results, got %d", len(got.Results))
	}
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}
