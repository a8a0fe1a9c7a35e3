// internal/workers/embedding/job-embedding/handler.go
package jobembedding

import (
	"context"
	"fmt"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/gemini"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
)

const (
	TaskType = pipeline.KindJobEmbedding
)

type Handler struct {
	config   *Config
	jobs     JobStore
	embedder gemini.Embedder
	index    SearchIndex
	logger   logger.Logger
}

func NewHandler(config *Config, jobs JobStore, embedder gemini.Embedder, index SearchIndex, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		jobs:     jobs,
		embedder: embedder,
		index:    index,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	job, err := h.jobs.FindJob(ctx, input.JobID)
	if err != nil {
		// a job deleted before its embedding ran has nothing left to embed
		if apperrors.CodeOf(err) == apperrors.ErrCodeEntityNotFound {
			h.logger.Warn("job not found, skipping embedding", map[string]interface{}{
				"jobId": input.JobID,
			})
			return &Output{JobID: input.JobID, Skipped: true}, nil
		}
		return nil, err
	}

	embedding, err := h.embedder.Embed(ctx, job.CanonicalText())
	if err != nil {
		return nil, fmt.Errorf("embed job %s: %w", job.ID, err)
	}

	model := h.embedder.EmbeddingModel()
	if err := h.jobs.SaveJobEmbedding(ctx, job.ID, embedding, model, job.UpdatedAt); err != nil {
		return nil, err
	}

	job.Embedding = embedding
	job.EmbeddingModel = model
	job.EmbeddingDirty = false

	if err := h.index.IndexJob(ctx, job); err != nil {
		return nil, err
	}

	h.logger.Info("job embedded", map[string]interface{}{
		"jobId":      job.ID,
		"model":      model,
		"dimensions": len(embedding),
	})

	return &Output{JobID: job.ID, Model: model, Dimensions: len(embedding)}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
