package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gbmarques/dicomflow/internal/domain"
	_ "github.com/lib/pq"
)

const batchSchemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	inputs JSONB NOT NULL,
	target_root TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL,
	anonymize BOOLEAN NOT NULL DEFAULT FALSE,
	anon_paths JSONB,
	sequential BOOLEAN NOT NULL DEFAULT FALSE,
	webhook_url TEXT NOT NULL DEFAULT '',
	results JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES batches(id),
	files_written BIGINT NOT NULL,
	files_skipped BIGINT NOT NULL,
	files_failed BIGINT NOT NULL,
	pixels_rendered BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresBatchStore struct {
	db *sql.DB
}

func NewPostgresBatchStore(ctx context.Context, dsn string) (*PostgresBatchStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresBatchStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresBatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, batchSchemaSQL); err != nil {
		return fmt.Errorf("ensure batches schema: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) Close() error {
	return s.db.Close()
}

func (s *PostgresBatchStore) Create(ctx context.Context, batch domain.Batch) error {
	inputsJSON, err := json.Marshal(batch.Inputs)
	if err != nil {
		return fmt.Errorf("marshal batch inputs: %w", err)
	}
	anonJSON, err := json.Marshal(batch.AnonPaths)
	if err != nil {
		return fmt.Errorf("marshal anon paths: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, status, source_type, inputs, target_root, format, anonymize, anon_paths, sequential, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		batch.ID,
		batch.Status,
		batch.SourceType,
		inputsJSON,
		batch.TargetRoot,
		batch.Format,
		batch.Anonymize,
		anonJSON,
		batch.Sequential,
		batch.WebhookURL,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

func (s *PostgresBatchStore) Get(ctx context.Context, id string) (domain.Batch, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, source_type, inputs, target_root, format, anonymize, anon_paths, sequential, webhook_url, results, created_at, updated_at
		 FROM batches
		 WHERE id = $1`,
		id,
	)

	var (
		batch       domain.Batch
		inputsJSON  []byte
		anonJSON    []byte
		resultsJSON []byte
	)
	if err := row.Scan(
		&batch.ID,
		&batch.Status,
		&batch.SourceType,
		&inputsJSON,
		&batch.TargetRoot,
		&batch.Format,
		&batch.Anonymize,
		&anonJSON,
		&batch.Sequential,
		&batch.WebhookURL,
		&resultsJSON,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Batch{}, false, nil
		}
		return domain.Batch{}, false, fmt.Errorf("query batch: %w", err)
	}

	if err := json.Unmarshal(inputsJSON, &batch.Inputs); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch inputs: %w", err)
	}
	if len(anonJSON) > 0 {
		if err := json.Unmarshal(anonJSON, &batch.AnonPaths); err != nil {
			return domain.Batch{}, false, fmt.Errorf("unmarshal anon paths: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &batch.Results); err != nil {
			return domain.Batch{}, false, fmt.Errorf("unmarshal batch results: %w", err)
		}
	}

	return batch, true, nil
}

func (s *PostgresBatchStore) UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresBatchStore) SetResults(ctx context.Context, id, status string, results []domain.Result) (domain.Batch, error) {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("marshal batch results: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, results = $2, updated_at = $3
		 WHERE id = $4`,
		status,
		resultsJSON,
		now,
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch results: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresBatchStore) RecordUsage(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (batch_id, files_written, files_skipped, files_failed, pixels_rendered, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.BatchID,
		usage.FilesWritten,
		usage.FilesSkipped,
		usage.FilesFailed,
		usage.PixelsRendered,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) mustGet(ctx context.Context, id string) (domain.Batch, error) {
	batch, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return batch, nil
}
