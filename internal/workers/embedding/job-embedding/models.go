// internal/workers/embedding/job-embedding/models.go
package jobembedding

import (
	"context"
	"time"

	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.JobEmbeddingPayload

type Output struct {
	JobID      string `json:"jobId"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Skipped    bool   `json:"skipped"`
}

// JobStore is the persistence the handler needs. *store.Store implements it.
type JobStore interface {
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
	SaveJobEmbedding(ctx context.Context, jobID string, embedding []float32, model string, readAt time.Time) error
}

// SearchIndex receives the embedded job. *jobsearch.Index implements it.
type SearchIndex interface {
	IndexJob(ctx context.Context, job *models.Job) error
}
