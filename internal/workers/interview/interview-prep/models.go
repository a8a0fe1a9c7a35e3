// internal/workers/interview/interview-prep/models.go
package interviewprep

import (
	"context"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/models"
	"match-pipeline/internal/pipeline"
)

type Input = pipeline.InterviewPrepPayload

// QuestionCategories are the allowed question_bank categories.
var QuestionCategories = []string{"Role-Specific", "Behavioral", "Situational", "Cultural-Fit"}

const QuestionBankSize = 10

type Question struct {
	QuestionID         string   `json:"question_id"`
	Question           string   `json:"question"`
	Category           string   `json:"category"`
	InterviewerIntent  string   `json:"interviewer_intent"`
	PersonalAnchorHint string   `json:"personal_anchor_hint"`
	IdealTalkingPoints []string `json:"ideal_talking_points"`
}

type GapStrategy struct {
	MissingQualification string `json:"missing_qualification"`
	PivotStrategy        string `json:"pivot_strategy"`
}

type Dashboard struct {
	CoachingSummary       string        `json:"coaching_summary"`
	ProfessionalVibe      string        `json:"professional_vibe"`
	QuestionBank          []Question    `json:"question_bank"`
	GapStrategies         []GapStrategy `json:"gap_strategies"`
	SmartReverseQuestions []string      `json:"smart_reverse_questions"`
}

// Result is the stored artifact payload.
type Result struct {
	MatchScore float64 `json:"matchScore"`
	Dashboard
}

type JobReader interface {
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
}

// ProfileReader loads a user's profile, typically through *store.ProfileCache.
type ProfileReader interface {
	FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error)
}

type ArtifactWriter interface {
	Complete(ctx context.Context, key artifact.Key, generation int64, payload []byte) error
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
	Touch(ctx context.Context, key artifact.Key, generation int64) error
}

var DashboardSchema = validation.Schema{
	"type":     "object",
	"required": []interface{}{"coaching_summary", "professional_vibe", "question_bank", "gap_strategies", "smart_reverse_questions"},
	"properties": map[string]interface{}{
		"coaching_summary":  map[string]interface{}{"type": "string", "minLength": 1},
		"professional_vibe": map[string]interface{}{"type": "string", "minLength": 1},
		"question_bank": map[string]interface{}{
			"type":     "array",
			"minItems": QuestionBankSize,
			"maxItems": QuestionBankSize,
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"question_id", "question", "category", "interviewer_intent", "personal_anchor_hint", "ideal_talking_points"},
				"properties": map[string]interface{}{
					"question_id":          map[string]interface{}{"type": "string"},
					"question":             map[string]interface{}{"type": "string", "minLength": 1},
					"category":             map[string]interface{}{"type": "string", "enum": toInterfaces(QuestionCategories)},
					"interviewer_intent":   map[string]interface{}{"type": "string"},
					"personal_anchor_hint": map[string]interface{}{"type": "string"},
					"ideal_talking_points": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
			},
		},
		"gap_strategies": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"missing_qualification", "pivot_strategy"},
				"properties": map[string]interface{}{
					"missing_qualification": map[string]interface{}{"type": "string"},
					"pivot_strategy":        map[string]interface{}{"type": "string"},
				},
			},
		},
		"smart_reverse_questions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
