// internal/workers/salary/invalidate/handler.go
package invalidate

import (
	"context"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
)

const (
	TaskType = pipeline.KindSalaryInvalidate
)

// Handler returns a user's salary prediction to idle so the next request
// computes a fresh one.
type Handler struct {
	config    *Config
	artifacts ArtifactResetter
	logger    logger.Logger
}

func NewHandler(config *Config, artifacts ArtifactResetter, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, apperrors.NewValidationFailedError("userId is required")
	}

	reset, err := h.artifacts.Reset(ctx, artifact.SalaryPredictionKey(input.UserID))
	if err != nil {
		return nil, err
	}

	h.logger.Info("salary prediction invalidated", map[string]interface{}{
		"userId": input.UserID,
		"reset":  reset,
	})
	return &Output{UserID: input.UserID, Reset: reset}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
