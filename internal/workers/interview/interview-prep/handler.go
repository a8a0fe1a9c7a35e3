// internal/workers/interview/interview-prep/handler.go
package interviewprep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"match-pipeline/internal/artifact"
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
	TaskType = pipeline.KindInterviewPrep
)

type Handler struct {
	config    *Config
	jobs      JobReader
	profiles  ProfileReader
	generator gemini.Generator
	limiter   ratelimit.Scheduler
	artifacts ArtifactWriter
	logger    logger.Logger
}

func NewHandler(config *Config, jobs JobReader, profiles ProfileReader, generator gemini.Generator, limiter ratelimit.Scheduler, artifacts ArtifactWriter, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		jobs:      jobs,
		profiles:  profiles,
		generator: generator,
		limiter:   limiter,
		artifacts: artifacts,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Result, error) {
	key := artifact.InterviewPrepKey(input.UserID, input.JobID)
	stop := artifact.KeepAlive(ctx, h.artifacts, key, input.Generation, h.config.Heartbeat, h.logger)
	defer stop()

	job, err := h.jobs.FindJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	profile, err := h.profiles.FindProfileByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	var matchScore float64
	if len(job.Embedding) > 0 && len(profile.Embedding) > 0 {
		matchScore, err = matching.CosineSimilarity(profile.Embedding, job.Embedding)
		if err != nil {
			h.logger.Warn("match score unavailable", map[string]interface{}{
				"artifact": key.String(),
				"error":    err.Error(),
			})
			matchScore = 0
		}
	}

	raw, err := ratelimit.Schedule(ctx, h.limiter, func(ctx context.Context) (string, error) {
		return h.generator.Generate(ctx, systemPrompt, buildPrompt(profile, job))
	})
	if err != nil {
		return nil, fmt.Errorf("generate interview prep: %w", err)
	}

	doc, err := validation.ValidateResponse(raw, DashboardSchema)
	if err != nil {
		return nil, err
	}

	result := &Result{MatchScore: matchScore}
	if err := json.Unmarshal(doc, &result.Dashboard); err != nil {
		return nil, apperrors.NewResponseInvalidError(err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode interview prep: %w", err)
	}

	if err := h.artifacts.Complete(ctx, key, input.Generation, payload); err != nil {
		if errors.Is(err, artifact.ErrStaleTransition) {
			h.logger.Warn("interview prep superseded, result dropped", map[string]interface{}{
				"artifact":   key.String(),
				"generation": input.Generation,
			})
			return result, nil
		}
		return nil, err
	}

	h.logger.Info("interview prep generated", map[string]interface{}{
		"artifact":   key.String(),
		"generation": input.Generation,
		"matchScore": matchScore,
	})
	return result, nil
}

// RecordFailure marks the artifact failed once the job ran out of attempts.
func (h *Handler) RecordFailure(ctx context.Context, job *queue.Job, cause error) error {
	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	key := artifact.InterviewPrepKey(input.UserID, input.JobID)
	err := h.artifacts.Fail(ctx, key, input.Generation, cause.Error())
	if errors.Is(err, artifact.ErrStaleTransition) {
		return nil
	}
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Result, error) {
	return h.execute(ctx, input)
}
