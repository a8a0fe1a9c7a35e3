// internal/workers/application/re-rank/handler.go
package rerank

import (
	"context"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/matching"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
	"match-pipeline/internal/store"
)

const (
	TaskType = pipeline.KindApplicationReRank
)

// Handler recomputes ranking scores after a job's ranking weights changed.
// Match scores and notes are left as they are.
type Handler struct {
	config *Config
	store  RankStore
	logger logger.Logger
}

func NewHandler(config *Config, store RankStore, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	job, err := h.store.FindJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}

	candidates, err := h.store.ListApplicationsForRerank(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	updates := make([]store.RankingUpdate, 0, len(candidates))
	ranking := make([]matching.Ranked, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		b := matching.Rank(&c.Profile, job, c.MatchScore)
		updates = append(updates, store.RankingUpdate{ApplicationID: c.ApplicationID, RankingScore: b.Score})
		ranking = append(ranking, matching.Ranked{ApplicationID: c.ApplicationID, MatchScore: c.MatchScore, RankingScore: b.Score})
	}

	updated, err := h.store.BulkUpdateRankingScores(ctx, job.ID, updates)
	if err != nil {
		return nil, err
	}
	matching.SortByRank(ranking)

	h.logger.Info("applications re-ranked", map[string]interface{}{
		"jobId":   job.ID,
		"scored":  len(updates),
		"updated": updated,
		"config":  job.RankingConfig.Name,
	})

	return &Output{JobID: job.ID, Scored: len(updates), Updated: updated, Ranking: ranking}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
