// internal/workers/application/match-rank/models.go
package matchrank

import (
	"context"

	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/matching"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.MatchRankPayload

type Output struct {
	ApplicationID string             `json:"applicationId"`
	MatchScore    float64            `json:"matchScore"`
	RankingScore  float64            `json:"rankingScore"`
	AINotes       []string           `json:"aiNotes"`
	Breakdown     matching.Breakdown `json:"breakdown"`
}

type ApplicationStore interface {
	FindApplicationBundle(ctx context.Context, applicationID string) (*models.ApplicationBundle, error)
	SaveApplicationScores(ctx context.Context, applicationID string, matchScore, rankingScore float64, notes []string) error
}

// NotesSchema is the response schema of recruiter notes: a short list of
// non-empty strings.
var NotesSchema = validation.Schema{
	"type":     "array",
	"minItems": 1,
	"maxItems": 8,
	"items": map[string]interface{}{
		"type":      "string",
		"minLength": 1,
	},
}
