// internal/workers/salary/predict/models.go
package predict

import (
	"context"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/salary"
)

type Input = pipeline.SalaryPredictionPayload

type ProfileReader interface {
	FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error)
}

// JobPool returns the coarse candidate pool. *jobsearch.Index implements it.
type JobPool interface {
	CandidatePool(ctx context.Context, q salary.PoolQuery) ([]models.Job, error)
}

type ArtifactWriter interface {
	Complete(ctx context.Context, key artifact.Key, generation int64, payload []byte) error
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
	Touch(ctx context.Context, key artifact.Key, generation int64) error
}
