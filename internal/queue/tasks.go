package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeConvertBatch = "dicom:convert_batch"

type ConvertBatchPayload struct {
	BatchID     string            `json:"batch_id"`
	SourceType  string            `json:"source_type"`
	Inputs      []string          `json:"inputs"`
	TargetRoot  string            `json:"target_root,omitempty"`
	Format      string            `json:"format"`
	Anonymize   bool              `json:"anonymize,omitempty"`
	AnonPaths   map[string]string `json:"anon_paths,omitempty"`
	Sequential  bool              `json:"sequential,omitempty"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
}

func NewConvertBatchTask(payload ConvertBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal convert payload: %w", err)
	}
	return asynq.NewTask(TypeConvertBatch, body), nil
}

func ParseConvertBatchPayload(task *asynq.Task) (ConvertBatchPayload, error) {
	var payload ConvertBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConvertBatchPayload{}, fmt.Errorf("unmarshal convert payload: %w", err)
	}
	return payload, nil
}
