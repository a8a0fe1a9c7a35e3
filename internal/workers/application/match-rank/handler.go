// internal/workers/application/match-rank/handler.go
package matchrank

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/gemini"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/ratelimit"
	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/matching"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
)

const (
	TaskType = pipeline.KindApplicationMatchRank
)

type Handler struct {
	config       *Config
	applications ApplicationStore
	generator    gemini.Generator
	limiter      ratelimit.Scheduler
	logger       logger.Logger
}

func NewHandler(config *Config, applications ApplicationStore, generator gemini.Generator, limiter ratelimit.Scheduler, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		applications: applications,
		generator:    generator,
		limiter:      limiter,
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"queueJobId": job.ID,
		"attempt":    job.Attempt,
	})

	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	_, err := h.execute(ctx, &input)
	return err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	bundle, err := h.applications.FindApplicationBundle(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	job, profile := &bundle.Job, &bundle.Profile

	if len(job.Embedding) == 0 || len(profile.Embedding) == 0 {
		return nil, apperrors.NewEmbeddingMissingError(fmt.Sprintf("application %s: job or profile has no embedding", input.ApplicationID))
	}

	matchScore, err := matching.CosineSimilarity(job.Embedding, profile.Embedding)
	if err != nil {
		return nil, apperrors.NewEmbeddingMissingError(fmt.Sprintf("application %s: %v", input.ApplicationID, err))
	}

	notes, err := h.generateNotes(ctx, buildNotesPrompt(job, profile))
	if err != nil {
		return nil, err
	}

	breakdown := matching.Rank(profile, job, matchScore)

	if err := h.applications.SaveApplicationScores(ctx, input.ApplicationID, matchScore, breakdown.Score, notes); err != nil {
		return nil, err
	}

	h.logger.Info("application scored", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"matchScore":    matchScore,
		"rankingScore":  breakdown.Score,
		"notes":         len(notes),
	})

	return &Output{
		ApplicationID: input.ApplicationID,
		MatchScore:    matchScore,
		RankingScore:  breakdown.Score,
		AINotes:       notes,
		Breakdown:     breakdown,
	}, nil
}

// generateNotes asks the model for recruiter notes through the shared limiter.
func (h *Handler) generateNotes(ctx context.Context, prompt string) ([]string, error) {
	raw, err := ratelimit.Schedule(ctx, h.limiter, func(ctx context.Context) (string, error) {
		return h.generator.Generate(ctx, notesSystemPrompt, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("generate notes: %w", err)
	}

	doc, err := validation.ValidateResponse(raw, NotesSchema)
	if err != nil {
		return nil, err
	}

	var notes []string
	if err := json.Unmarshal(doc, &notes); err != nil {
		return nil, apperrors.NewResponseInvalidError(err.Error())
	}
	if h.config.MaxNotes > 0 && len(notes) > h.config.MaxNotes {
		notes = notes[:h.config.MaxNotes]
	}
	return notes, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
