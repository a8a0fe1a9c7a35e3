// internal/workers/application/re-rank/models.go
package rerank

import (
	"context"

	"match-pipeline/internal/matching"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/store"
)

type Input = pipeline.ReRankPayload

type Output struct {
	JobID   string `json:"jobId"`
	Scored  int    `json:"scored"`
	Updated int64  `json:"updated"`
	// Ranking lists the applications best first.
	Ranking []matching.Ranked `json:"ranking"`
}

type RankStore interface {
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
	ListApplicationsForRerank(ctx context.Context, jobID string) ([]models.RerankCandidate, error)
	BulkUpdateRankingScores(ctx context.Context, jobID string, updates []store.RankingUpdate) (int64, error)
}
