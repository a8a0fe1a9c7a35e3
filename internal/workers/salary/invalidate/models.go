// internal/workers/salary/invalidate/models.go
package invalidate

import (
	"context"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.SalaryInvalidatePayload

type Output struct {
	UserID string `json:"userId"`
	// Reset is false when there was no prediction, finished or running, to drop.
	Reset bool `json:"reset"`
}

type ArtifactResetter interface {
	Reset(ctx context.Context, key artifact.Key) (bool, error)
}
