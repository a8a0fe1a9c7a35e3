// internal/submission/service.go
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/validation"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
	"match-pipeline/pkg/registry"
)

// ArtifactStore is the part of the artifact store the request path uses.
type ArtifactStore interface {
	Claim(ctx context.Context, key artifact.Key) (artifact.Claim, error)
	Fail(ctx context.Context, key artifact.Key, generation int64, reason string) error
	Get(ctx context.Context, key artifact.Key) (*artifact.Record, error)
	ListByTarget(ctx context.Context, kind artifact.Kind, targetID string) ([]*artifact.Record, error)
}

type Producer interface {
	Enqueue(ctx context.Context, queue, kind string, payload interface{}, opts queue.Options) (*queue.Job, error)
	EnqueueBulk(ctx context.Context, queue string, entries []queue.Entry) ([]*queue.Job, error)
}

// Service claims artifacts and enqueues the jobs that produce them. An
// artifact already in flight or already produced is never enqueued twice.
type Service struct {
	artifacts ArtifactStore
	producer  Producer
	registry  *registry.KindRegistry
	logger    logger.Logger
}

func New(artifacts ArtifactStore, producer Producer, reg *registry.KindRegistry, log logger.Logger) *Service {
	return &Service{
		artifacts: artifacts,
		producer:  producer,
		registry:  reg,
		logger:    log.WithFields(map[string]interface{}{"component": "submission"}),
	}
}

// Summary reports a bulk start: which subjects got a job and which were
// skipped because their artifact was in flight or already produced.
type Summary struct {
	Enqueued []string
	Skipped  map[string]artifact.Status
}

// ==========================
// Artifact-backed kinds
// ==========================

func (s *Service) StartInterviewPrep(ctx context.Context, userID, jobID string) (*artifact.Record, error) {
	return s.start(ctx, artifact.InterviewPrepKey(userID, jobID), pipeline.KindInterviewPrep,
		func(generation int64) interface{} {
			return pipeline.InterviewPrepPayload{UserID: userID, JobID: jobID, Generation: generation}
		})
}

func (s *Service) StartInterviewKit(ctx context.Context, jobID string) (*artifact.Record, error) {
	return s.start(ctx, artifact.InterviewKitKey(jobID), pipeline.KindInterviewKit,
		func(generation int64) interface{} {
			return pipeline.InterviewKitPayload{JobID: jobID, Generation: generation}
		})
}

func (s *Service) StartSalaryPrediction(ctx context.Context, userID string) (*artifact.Record, error) {
	return s.start(ctx, artifact.SalaryPredictionKey(userID), pipeline.KindSalaryPrediction,
		func(generation int64) interface{} {
			return pipeline.SalaryPredictionPayload{UserID: userID, Generation: generation}
		})
}

// start claims key and enqueues one job only when the claim was won.
func (s *Service) start(ctx context.Context, key artifact.Key, kind string, payload func(generation int64) interface{}) (*artifact.Record, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}

	claim, err := s.artifacts.Claim(ctx, key)
	if err != nil {
		return nil, err
	}
	if !claim.Claimed {
		s.logger.Info("artifact already claimed, not enqueuing", map[string]interface{}{
			"artifact": key.String(),
			"status":   string(claim.Record.Status),
		})
		return claim.Record, nil
	}

	body := payload(claim.Record.Generation)
	if err := validatePayload(spec, body); err != nil {
		s.release(ctx, key, claim.Record.Generation, err)
		return nil, err
	}

	if _, err := s.producer.Enqueue(ctx, spec.Queue, kind, body, optionsFor(spec)); err != nil {
		s.release(ctx, key, claim.Record.Generation, err)
		return nil, err
	}
	return claim.Record, nil
}

// StartCandidateQuestions claims one artifact per candidate and enqueues the
// claimed ones in a single bulk call.
func (s *Service) StartCandidateQuestions(ctx context.Context, jobID string, candidateIDs []string) (Summary, error) {
	summary := Summary{Skipped: make(map[string]artifact.Status)}

	spec, err := s.spec(pipeline.KindCandidateQuestion)
	if err != nil {
		return summary, err
	}
	opts := optionsFor(spec)

	var (
		entries []queue.Entry
		claims  []claimedKey
	)

	seen := make(map[string]bool, len(candidateIDs))
	for _, candidateID := range candidateIDs {
		if candidateID == "" || seen[candidateID] {
			continue
		}
		seen[candidateID] = true

		key := artifact.CandidateQuestionKey(jobID, candidateID)
		claim, err := s.artifacts.Claim(ctx, key)
		if err != nil {
			s.releaseAll(ctx, claims, err)
			return Summary{Skipped: map[string]artifact.Status{}}, err
		}
		if !claim.Claimed {
			summary.Skipped[candidateID] = claim.Record.Status
			continue
		}

		payload := pipeline.CandidateQuestionPayload{JobID: jobID, CandidateID: candidateID, Generation: claim.Record.Generation}
		claims = append(claims, claimedKey{key: key, generation: claim.Record.Generation})
		if err := validatePayload(spec, payload); err != nil {
			s.releaseAll(ctx, claims, err)
			return Summary{Skipped: map[string]artifact.Status{}}, err
		}
		entries = append(entries, queue.Entry{Kind: pipeline.KindCandidateQuestion, Payload: payload, Options: opts})
		summary.Enqueued = append(summary.Enqueued, candidateID)
	}

	if len(entries) == 0 {
		return summary, nil
	}
	if _, err := s.producer.EnqueueBulk(ctx, spec.Queue, entries); err != nil {
		s.releaseAll(ctx, claims, err)
		return Summary{Skipped: map[string]artifact.Status{}}, err
	}

	s.logger.Info("candidate questions enqueued", map[string]interface{}{
		"jobId":    jobID,
		"enqueued": len(summary.Enqueued),
		"skipped":  len(summary.Skipped),
	})
	return summary, nil
}

type claimedKey struct {
	key        artifact.Key
	generation int64
}

func (s *Service) releaseAll(ctx context.Context, claims []claimedKey, cause error) {
	for _, c := range claims {
		s.release(ctx, c.key, c.generation, cause)
	}
}

// release fails a claim whose job never made it onto the queue so the
// artifact can be claimed again right away instead of waiting for the sweeper.
func (s *Service) release(ctx context.Context, key artifact.Key, generation int64, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	reason := fmt.Sprintf("enqueue failed: %v", cause)
	if err := s.artifacts.Fail(ctx, key, generation, reason); err != nil && !errors.Is(err, artifact.ErrStaleTransition) {
		s.logger.Error("failed to release artifact claim", map[string]interface{}{
			"artifact": key.String(),
			"error":    err.Error(),
		})
	}
}

// ==========================
// Enqueue-only kinds
// ==========================

func (s *Service) RequestApplicationScoring(ctx context.Context, applicationID string) (*queue.Job, error) {
	return s.enqueue(ctx, pipeline.KindApplicationMatchRank, pipeline.MatchRankPayload{ApplicationID: applicationID})
}

func (s *Service) RequestReRank(ctx context.Context, jobID string) (*queue.Job, error) {
	return s.enqueue(ctx, pipeline.KindApplicationReRank, pipeline.ReRankPayload{JobID: jobID})
}

func (s *Service) RequestJobEmbedding(ctx context.Context, jobID string) (*queue.Job, error) {
	return s.enqueue(ctx, pipeline.KindJobEmbedding, pipeline.JobEmbeddingPayload{JobID: jobID})
}

func (s *Service) RequestProfileEmbedding(ctx context.Context, profileID string) (*queue.Job, error) {
	return s.enqueue(ctx, pipeline.KindProfileEmbedding, pipeline.ProfileEmbeddingPayload{ProfileID: profileID})
}

func (s *Service) InvalidateSalaryPrediction(ctx context.Context, userID string) (*queue.Job, error) {
	return s.enqueue(ctx, pipeline.KindSalaryInvalidate, pipeline.SalaryInvalidatePayload{UserID: userID})
}

func (s *Service) enqueue(ctx context.Context, kind string, payload interface{}) (*queue.Job, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(spec, payload); err != nil {
		return nil, err
	}
	return s.producer.Enqueue(ctx, spec.Queue, kind, payload, optionsFor(spec))
}

// ==========================
// Reads
// ==========================

func (s *Service) InterviewPrep(ctx context.Context, userID, jobID string) (*artifact.Record, error) {
	return s.artifacts.Get(ctx, artifact.InterviewPrepKey(userID, jobID))
}

// InterviewPrepsForJob lists every user's interview preparation for jobID.
func (s *Service) InterviewPrepsForJob(ctx context.Context, jobID string) ([]*artifact.Record, error) {
	return s.artifacts.ListByTarget(ctx, artifact.KindInterviewPrep, jobID)
}

func (s *Service) CandidateQuestions(ctx context.Context, jobID, candidateID string) (*artifact.Record, error) {
	return s.artifacts.Get(ctx, artifact.CandidateQuestionKey(jobID, candidateID))
}

func (s *Service) InterviewKit(ctx context.Context, jobID string) (*artifact.Record, error) {
	return s.artifacts.Get(ctx, artifact.InterviewKitKey(jobID))
}

func (s *Service) SalaryPrediction(ctx context.Context, userID string) (*artifact.Record, error) {
	return s.artifacts.Get(ctx, artifact.SalaryPredictionKey(userID))
}

// ==========================
// Helpers
// ==========================

func (s *Service) spec(kind string) (registry.KindSpec, error) {
	spec, ok := s.registry.Lookup(kind)
	if !ok {
		return registry.KindSpec{}, apperrors.NewUnknownJobKindError("", kind)
	}
	return spec, nil
}

func optionsFor(spec registry.KindSpec) queue.Options {
	opts := queue.Options{Attempts: spec.Attempts}
	if spec.Backoff != nil {
		opts.Backoff = &queue.Backoff{
			Type:  queue.BackoffType(spec.Backoff.Type),
			Delay: spec.BackoffDelay(),
		}
	}
	return opts
}

func validatePayload(spec registry.KindSpec, payload interface{}) error {
	if err := validation.Validate(validation.Schema(spec.InputSchema), payload); err != nil {
		return apperrors.NewValidationFailedError(fmt.Sprintf("%s payload: %v", spec.Kind, err))
	}
	return nil
}
