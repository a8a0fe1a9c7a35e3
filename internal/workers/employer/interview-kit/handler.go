// internal/workers/employer/interview-kit/handler.go
package interviewkit

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
	TaskType = pipeline.KindInterviewKit
)

type Handler struct {
	config    *Config
	jobs      JobReader
	generator gemini.Generator
	limiter   ratelimit.Scheduler
	artifacts ArtifactWriter
	logger    logger.Logger
}

func NewHandler(config *Config, jobs JobReader, generator gemini.Generator, limiter ratelimit.Scheduler, artifacts ArtifactWriter, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		jobs:      jobs,
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Kit, error) {
	key := artifact.InterviewKitKey(input.JobID)
	stop := artifact.KeepAlive(ctx, h.artifacts, key, input.Generation, h.config.Heartbeat, h.logger)
	defer stop()

	job, err := h.jobs.FindJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}

	raw, err := ratelimit.Schedule(ctx, h.limiter, func(ctx context.Context) (string, error) {
		return h.generator.Generate(ctx, systemPrompt, buildPrompt(job))
	})
	if err != nil {
		return nil, fmt.Errorf("generate interview kit: %w", err)
	}

	doc, err := validation.ValidateResponse(raw, KitSchema)
	if err != nil {
		return nil, err
	}
	var kit Kit
	if err := json.Unmarshal(doc, &kit); err != nil {
		return nil, apperrors.NewResponseInvalidError(err.Error())
	}

	err = h.artifacts.Complete(ctx, key, input.Generation, doc)
	switch {
	case errors.Is(err, artifact.ErrStaleTransition):
		h.logger.Warn("interview kit superseded, result dropped", map[string]interface{}{
			"artifact":   key.String(),
			"generation": input.Generation,
		})
	case err != nil:
		return nil, err
	default:
		h.logger.Info("interview kit generated", map[string]interface{}{
			"artifact":  key.String(),
			"questions": len(kit.Questions),
		})
	}
	return &kit, nil
}

func (h *Handler) RecordFailure(ctx context.Context, job *queue.Job, cause error) error {
	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := h.artifacts.Fail(ctx, artifact.InterviewKitKey(input.JobID), input.Generation, cause.Error())
	if errors.Is(err, artifact.ErrStaleTransition) {
		return nil
	}
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Kit, error) {
	return h.execute(ctx, input)
}
