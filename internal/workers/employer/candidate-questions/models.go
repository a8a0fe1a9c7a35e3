// internal/workers/employer/candidate-questions/models.go
package candidatequestions

import (
	"context"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

// Input.CandidateID is the candidate's user id.
type Input = pipeline.CandidateQuestionPayload

type Question struct {
	Question      string `json:"question"`
	GapIdentified string `json:"gapIdentified"`
	Intent        string `json:"intent"`
	ExpectedLogic string `json:"expectedLogic"`
}

type Result struct {
	CandidateSummary string     `json:"candidateSummary"`
	Questions        []Question `json:"questions"`
}

type JobReader interface {
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
}

type ProfileReader interface {
	FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error)
}

type ArtifactWriter interface {
	Complete(ctx context.Context, key artifact.Key, generation int64, payload []byte) error
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
	Touch(ctx context.Context, key artifact.Key, generation int64) error
}

var ResultSchema = validation.Schema{
	"type":     "object",
	"required": []interface{}{"candidateSummary", "questions"},
	"properties": map[string]interface{}{
		"candidateSummary": map[string]interface{}{"type": "string", "minLength": 1},
		"questions": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"question", "gapIdentified", "intent", "expectedLogic"},
				"properties": map[string]interface{}{
					"question":      map[string]interface{}{"type": "string", "minLength": 1},
					"gapIdentified": map[string]interface{}{"type": "string"},
					"intent":        map[string]interface{}{"type": "string"},
					"expectedLogic": map[string]interface{}{"type": "string"},
				},
			},
		},
	},
}
