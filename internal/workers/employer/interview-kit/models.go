// internal/workers/employer/interview-kit/models.go
package interviewkit

import (
	"context"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.InterviewKitPayload

const KitSize = 7

var Categories = []interface{}{
	"Core_Competency",
	"Situational_Judgment",
	"Behavioral_Traits",
	"Operational_Knowledge",
	"Leadership_Potential",
	"Culture_Values",
}

type ScoreRubric struct {
	Score1 string `json:"score_1"`
	Score3 string `json:"score_3"`
	Score5 string `json:"score_5"`
}

type Question struct {
	ID                string      `json:"id"`
	Question          string      `json:"question"`
	Category          string      `json:"category"`
	Intent            string      `json:"intent"`
	GoodAnswerSignals []string    `json:"good_answer_signals"`
	RedFlags          []string    `json:"red_flags"`
	ScoreRubric       ScoreRubric `json:"score_rubric"`
}

// Kit is the same question set for every candidate of a job.
type Kit struct {
	Strategy  string     `json:"strategy"`
	Questions []Question `json:"questions"`
}

type JobReader interface {
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
}

type ArtifactWriter interface {
	Complete(ctx context.Context, key artifact.Key, generation int64, payload []byte) error
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
	Touch(ctx context.Context, key artifact.Key, generation int64) error
}

var KitSchema = validation.Schema{
	"type":     "object",
	"required": []interface{}{"strategy", "questions"},
	"properties": map[string]interface{}{
		"strategy": map[string]interface{}{"type": "string", "minLength": 1},
		"questions": map[string]interface{}{
			"type":     "array",
			"minItems": KitSize,
			"maxItems": KitSize,
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"id", "question", "category", "intent", "good_answer_signals", "red_flags", "score_rubric"},
				"properties": map[string]interface{}{
					"id":                  map[string]interface{}{"type": "string"},
					"question":            map[string]interface{}{"type": "string", "minLength": 1},
					"category":            map[string]interface{}{"type": "string", "enum": Categories},
					"intent":              map[string]interface{}{"type": "string"},
					"good_answer_signals": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"red_flags":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"score_rubric": map[string]interface{}{
						"type":     "object",
						"required": []interface{}{"score_1", "score_3", "score_5"},
						"properties": map[string]interface{}{
							"score_1": map[string]interface{}{"type": "string"},
							"score_3": map[string]interface{}{"type": "string"},
							"score_5": map[string]interface{}{"type": "string"},
						},
					},
				},
			},
		},
	},
}
