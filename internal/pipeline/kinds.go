// internal/pipeline/kinds.go

// Package pipeline names the queues and job kinds of the background pipeline
// and the payload each kind carries.
package pipeline

const (
	QueueEmbedding        = "embedding"
	QueueApplication      = "application"
	QueueEmployer         = "employer"
	QueueInterviewPrep    = "interview-prep"
	QueueSalaryPrediction = "salary-prediction"
)

const (
	KindJobEmbedding         = "job-embedding"
	KindProfileEmbedding     = "profile-embedding"
	KindApplicationMatchRank = "application-match-rank"
	KindApplicationReRank    = "application-re-rank"
	KindInterviewPrep        = "interview-prep-start"
	KindCandidateQuestion    = "ci-question-generate"
	KindInterviewKit         = "interview-kit-generate"
	KindSalaryPrediction     = "salary-prediction"
	KindSalaryInvalidate     = "salary-prediction-invalidate"
)

// Queues lists every queue in startup order.
func Queues() []string {
	return []string{QueueEmbedding, QueueApplication, QueueEmployer, QueueInterviewPrep, QueueSalaryPrediction}
}

type JobEmbeddingPayload struct {
	JobID string `json:"jobId"`
}

type ProfileEmbeddingPayload struct {
	ProfileID string `json:"profileId"`
}

type MatchRankPayload struct {
	ApplicationID string `json:"applicationId"`
}

type ReRankPayload struct {
	JobID string `json:"jobId"`
}

// Generation on the artifact payloads is the claim the job was enqueued
// under; transitions made with an older generation are rejected.

type InterviewPrepPayload struct {
	UserID     string `json:"userId"`
	JobID      string `json:"jobId"`
	Generation int64  `json:"generation"`
}

type CandidateQuestionPayload struct {
	JobID       string `json:"jobId"`
	CandidateID string `json:"candidateId"`
	Generation  int64  `json:"generation"`
}

type InterviewKitPayload struct {
	JobID      string `json:"jobId"`
	Generation int64  `json:"generation"`
}

type SalaryPredictionPayload struct {
	UserID     string `json:"userId"`
	Generation int64  `json:"generation"`
}

type SalaryInvalidatePayload struct {
	UserID string `json:"userId"`
}
