package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BatchStatusCreated    = "created"
	BatchStatusQueued     = "queued"
	BatchStatusProcessing = "processing"
	BatchStatusSucceeded  = "succeeded"
	BatchStatusFailed     = "failed"

	SourceTypeLocalPath   = "local_path"
	SourceTypeObjectStore = "object_store"
)

// CreateBatchRequest is the API submission payload for one conversion batch.
type CreateBatchRequest struct {
	SourceType string            `json:"source_type"`
	Inputs     []string          `json:"inputs"`
	TargetRoot string            `json:"target_root,omitempty"`
	Format     string            `json:"format"`
	Anonymize  bool              `json:"anonymize,omitempty"`
	AnonPaths  map[string]string `json:"anon_paths,omitempty"`
	Sequential bool              `json:"sequential,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
}

type Batch struct {
	ID         string
	Status     string
	SourceType string
	Inputs     []string
	TargetRoot string
	Format     string
	Anonymize  bool
	AnonPaths  map[string]string
	Sequential bool
	WebhookURL string
	Results    []Result
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateBatchRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalPath && sourceType != SourceTypeObjectStore {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if len(r.Inputs) == 0 {
		return errors.New("inputs must contain at least one path")
	}
	for i, input := range r.Inputs {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("inputs[%d] is empty", i)
		}
	}
	if _, err := NormalizeFormat(r.Format); err != nil {
		return err
	}
	if r.Anonymize && len(r.AnonPaths) == 0 {
		return errors.New("anonymize requires anon_paths to be fully specified")
	}
	return nil
}
