package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"document-index/internal/models"

	"github.com/redis/go-redis/v9"
)

// jobField is the stream entry field holding the encoded Job.
const jobField = "job"

// Job asks for one document to be ingested. Exactly one of FilePath and
// Text is set.
type Job struct {
	UserID       string `json:"user_id"`
	DocumentName string `json:"document_name"`
	FilePath     string `json:"file_path,omitempty"`
	Text         string `json:"text,omitempty"`
}

func (j Job) Validate() error {
	if j.UserID == "" || j.DocumentName == "" {
		return fmt.Errorf("%w: job needs user_id and document_name", models.ErrInvalidInput)
	}
	if (j.FilePath == "") == (j.Text == "") {
		return fmt.Errorf("%w: job needs exactly one of file_path and text", models.ErrInvalidInput)
	}
	return nil
}

// Source is the ingestion request the job describes.
func (j Job) Source() models.SourceDocument {
	return models.SourceDocument{
		UserID:       j.UserID,
		DocumentName: j.DocumentName,
		FilePath:     j.FilePath,
		TextOverride: j.Text,
	}
}

// Publisher appends jobs to a Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Publish validates job and appends it to the stream, returning the entry id.
func (p *Publisher) Publish(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{jobField: raw},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group, and the stream, if missing.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("%w: stream and group must be provided", models.ErrInvalidInput)
	}
	if err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

func decodeJob(msg redis.XMessage) (Job, error) {
	var job Job
	var data []byte
	switch v := msg.Values[jobField].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return job, fmt.Errorf("%w: entry %s has no job field", models.ErrInvalidInput, msg.ID)
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("%w: entry %s: %v", models.ErrInvalidInput, msg.ID, err)
	}
	return job, job.Validate()
}
