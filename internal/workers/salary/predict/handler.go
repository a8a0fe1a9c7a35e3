// internal/workers/salary/predict/handler.go
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
	"match-pipeline/internal/salary"
)

const (
	TaskType = pipeline.KindSalaryPrediction
)

type Handler struct {
	config     *Config
	profiles   ProfileReader
	pool       JobPool
	aggregator *salary.Aggregator
	artifacts  ArtifactWriter
	logger     logger.Logger
}

func NewHandler(config *Config, profiles ProfileReader, pool JobPool, aggregator *salary.Aggregator, artifacts ArtifactWriter, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		profiles:   profiles,
		pool:       pool,
		aggregator: aggregator,
		artifacts:  artifacts,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

func (h *Handler) execute(ctx context.Context, input *Input) (*salary.Prediction, error) {
	key := artifact.SalaryPredictionKey(input.UserID)
	stop := artifact.KeepAlive(ctx, h.artifacts, key, input.Generation, h.config.Heartbeat, h.logger)
	defer stop()

	profile, err := h.profiles.FindProfileByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !profile.HasEmbedding() {
		return nil, apperrors.NewEmbeddingMissingError("profile for user " + input.UserID)
	}

	q, err := h.aggregator.Config().BuildPoolQuery(profile)
	if err != nil {
		return nil, err
	}

	pool, err := h.pool.CandidatePool(ctx, q)
	if err != nil {
		return nil, err
	}

	prediction, err := h.aggregator.Predict(profile, pool)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(prediction)
	if err != nil {
		return nil, fmt.Errorf("encode prediction: %w", err)
	}

	if err := h.artifacts.Complete(ctx, key, input.Generation, payload); err != nil {
		if !errors.Is(err, artifact.ErrStaleTransition) {
			return nil, err
		}
		h.logger.Warn("salary prediction superseded, result dropped", map[string]interface{}{
			"artifact":   key.String(),
			"generation": input.Generation,
		})
		return prediction, nil
	}

	h.logger.Info("salary predicted", map[string]interface{}{
		"userId":     input.UserID,
		"pool":       len(pool),
		"sampleSize": prediction.SampleSize,
		"confidence": string(prediction.Confidence),
		"currency":   prediction.Currency,
	})
	return prediction, nil
}

func (h *Handler) RecordFailure(ctx context.Context, job *queue.Job, cause error) error {
	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := h.artifacts.Fail(ctx, artifact.SalaryPredictionKey(input.UserID), input.Generation, cause.Error())
	if errors.Is(err, artifact.ErrStaleTransition) {
		return nil
	}
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*salary.Prediction, error) {
	return h.execute(ctx, input)
}
