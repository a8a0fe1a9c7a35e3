// internal/workers/employer/candidate-questions/handler.go
package candidatequestions

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
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
)

const (
	TaskType = pipeline.KindCandidateQuestion
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
	key := artifact.CandidateQuestionKey(input.JobID, input.CandidateID)
	stop := artifact.KeepAlive(ctx, h.artifacts, key, input.Generation, h.config.Heartbeat, h.logger)
	defer stop()

	job, err := h.jobs.FindJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	profile, err := h.profiles.FindProfileByUser(ctx, input.CandidateID)
	if err != nil {
		return nil, err
	}

	raw, err := ratelimit.Schedule(ctx, h.limiter, func(ctx context.Context) (string, error) {
		return h.generator.Generate(ctx, systemPrompt, buildPrompt(job, profile, h.config.DescriptionLimit))
	})
	if err != nil {
		return nil, fmt.Errorf("generate candidate questions: %w", err)
	}

	doc, err := validation.ValidateResponse(raw, ResultSchema)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, apperrors.NewResponseInvalidError(err.Error())
	}

	if err := h.artifacts.Complete(ctx, key, input.Generation, doc); err != nil {
		if !errors.Is(err, artifact.ErrStaleTransition) {
			return nil, err
		}
		h.logger.Warn("candidate questions superseded, result dropped", map[string]interface{}{
			"artifact":   key.String(),
			"generation": input.Generation,
		})
		return &result, nil
	}

	h.logger.Info("candidate questions generated", map[string]interface{}{
		"artifact":  key.String(),
		"questions": len(result.Questions),
	})
	return &result, nil
}

func (h *Handler) RecordFailure(ctx context.Context, job *queue.Job, cause error) error {
	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := h.artifacts.Fail(ctx, artifact.CandidateQuestionKey(input.JobID, input.CandidateID), input.Generation, cause.Error())
	if errors.Is(err, artifact.ErrStaleTransition) {
		return nil
	}
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Result, error) {
	return h.execute(ctx, input)
}
