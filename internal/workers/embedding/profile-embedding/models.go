// internal/workers/embedding/profile-embedding/models.go
package profileembedding

import (
	"context"
	"time"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.ProfileEmbeddingPayload

type Output struct {
	ProfileID string `json:"profileId"`
	Embedded  bool   `json:"embedded"`
	// SalaryReset reports whether a finished or running salary prediction was invalidated.
	SalaryReset bool `json:"salaryReset"`
}

type ProfileStore interface {
	FindProfile(ctx context.Context, profileID string) (*models.Profile, error)
	// SaveProfileEmbedding fails with a retryable conflict when the profile's
	// updated_at no longer equals readAt.
	SaveProfileEmbedding(ctx context.Context, profileID string, embedding []float32, model string, readAt time.Time) error
}

type ArtifactResetter interface {
	Reset(ctx context.Context, key artifact.Key) (bool, error)
}

// ProfileCache drops cached copies of a profile. *store.ProfileCache implements it.
type ProfileCache interface {
	Invalidate(ctx context.Context, userID string) error
}
