// internal/workers/embedding/profile-embedding/handler.go
package profileembedding

import (
	"context"
	"fmt"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/gemini"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
)

const (
	TaskType = pipeline.KindProfileEmbedding
)

type Handler struct {
	config    *Config
	profiles  ProfileStore
	embedder  gemini.Embedder
	artifacts ArtifactResetter
	cache     ProfileCache
	logger    logger.Logger
}

func NewHandler(config *Config, profiles ProfileStore, embedder gemini.Embedder, artifacts ArtifactResetter, cache ProfileCache, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		profiles:  profiles,
		embedder:  embedder,
		artifacts: artifacts,
		cache:     cache,
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
	profile, err := h.profiles.FindProfile(ctx, input.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile.IsDeleted {
		return nil, apperrors.NewValidationFailedError(fmt.Sprintf("profile %s is deleted, embedding not possible", profile.ID))
	}

	out := &Output{ProfileID: profile.ID}
	if !profile.EmbeddingDirty && len(profile.Embedding) > 0 {
		h.logger.Debug("profile embedding is current", map[string]interface{}{
			"profileId": profile.ID,
		})
		return out, nil
	}

	embedding, err := h.embedder.Embed(ctx, profile.CanonicalText())
	if err != nil {
		return nil, fmt.Errorf("embed profile %s: %w", profile.ID, err)
	}
	if err := h.profiles.SaveProfileEmbedding(ctx, profile.ID, embedding, h.embedder.EmbeddingModel(), profile.UpdatedAt); err != nil {
		return nil, err
	}
	out.Embedded = true

	// the stored prediction was computed from the old vector
	reset, err := h.artifacts.Reset(ctx, artifact.SalaryPredictionKey(profile.UserID))
	if err != nil {
		return nil, err
	}
	out.SalaryReset = reset

	if err := h.cache.Invalidate(ctx, profile.UserID); err != nil {
		h.logger.Warn("failed to invalidate cached profile", map[string]interface{}{
			"userId": profile.UserID,
			"error":  err.Error(),
		})
	}

	h.logger.Info("profile embedded", map[string]interface{}{
		"profileId":   profile.ID,
		"dimensions":  len(embedding),
		"salaryReset": reset,
	})
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
