package store

import (
	"context"
	"errors"

	"github.com/gbmarques/dicomflow/internal/domain"
)

var ErrBatchNotFound = errors.New("batch not found")

type BatchStore interface {
	Create(ctx context.Context, batch domain.Batch) error
	Get(ctx context.Context, id string) (domain.Batch, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error)
	SetResults(ctx context.Context, id, status string, results []domain.Result) (domain.Batch, error)
}

// UsageStore records per-batch compute accounting after a run completes.
type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
}
