// internal/artifact/artifact.go

// Package artifact tracks generated artifacts through a durable status state
// machine. Every transition is a single conditional SQL statement, so
// concurrent submitters and redelivered jobs cannot both win.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStaleTransition means the record moved on (another generation
	// claimed it, or it already left the in-flight state).
	ErrStaleTransition = errors.New("artifact: stale transition")
	ErrNotFound        = errors.New("artifact: not found")
)

type Kind string

const (
	KindInterviewPrep     Kind = "interview_prep"
	KindCandidateQuestion Kind = "candidate_question"
	KindInterviewKit      Kind = "interview_kit"
	KindSalaryPrediction  Kind = "salary_prediction"
)

type Status string

// Lifecycle names the four states of one artifact kind.
type Lifecycle struct {
	Initial   Status
	InFlight  Status
	Succeeded Status
	Failed    Status
}

var (
	GenerationLifecycle = Lifecycle{Initial: "pending", InFlight: "generating", Succeeded: "generated", Failed: "failed"}
	ProcessingLifecycle = Lifecycle{Initial: "idle", InFlight: "processing", Succeeded: "completed", Failed: "failed"}
)

type kindSpec struct {
	lifecycle Lifecycle
	hasTarget bool
}

var kinds = map[Kind]kindSpec{
	KindInterviewPrep:     {GenerationLifecycle, true},
	KindCandidateQuestion: {GenerationLifecycle, true},
	KindInterviewKit:      {GenerationLifecycle, false},
	KindSalaryPrediction:  {ProcessingLifecycle, false},
}

// Kinds returns every known artifact kind.
func Kinds() []Kind {
	return []Kind{KindInterviewPrep, KindCandidateQuestion, KindInterviewKit, KindSalaryPrediction}
}

func (k Kind) Lifecycle() Lifecycle {
	return kinds[k].lifecycle
}

// InFlightStatuses lists the in-flight status of every lifecycle in use.
func InFlightStatuses() []string {
	return []string{string(GenerationLifecycle.InFlight), string(ProcessingLifecycle.InFlight)}
}

// Key identifies one artifact. TargetID is empty for kinds keyed by their
// subject alone.
type Key struct {
	Kind      Kind
	SubjectID string
	TargetID  string
}

func InterviewPrepKey(userID, jobID string) Key {
	return Key{Kind: KindInterviewPrep, SubjectID: userID, TargetID: jobID}
}

func CandidateQuestionKey(jobID, candidateID string) Key {
	return Key{Kind: KindCandidateQuestion, SubjectID: jobID, TargetID: candidateID}
}

func InterviewKitKey(jobID string) Key {
	return Key{Kind: KindInterviewKit, SubjectID: jobID}
}

func SalaryPredictionKey(userID string) Key {
	return Key{Kind: KindSalaryPrediction, SubjectID: userID}
}

func (k Key) Validate() error {
	spec, ok := kinds[k.Kind]
	if !ok {
		return fmt.Errorf("artifact: unknown kind %q", k.Kind)
	}
	if k.SubjectID == "" {
		return fmt.Errorf("artifact: %s requires a subject id", k.Kind)
	}
	if spec.hasTarget && k.TargetID == "" {
		return fmt.Errorf("artifact: %s requires a target id", k.Kind)
	}
	if !spec.hasTarget && k.TargetID != "" {
		return fmt.Errorf("artifact: %s takes no target id", k.Kind)
	}
	return nil
}

func (k Key) String() string {
	if k.TargetID == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.SubjectID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.SubjectID, k.TargetID)
}

// Record is the stored state of one artifact.
type Record struct {
	Key
	Status      Status
	Generation  int64
	Payload     json.RawMessage
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// InFlight reports whether a job currently owns the record.
func (r *Record) InFlight() bool {
	return r.Status == r.Kind.Lifecycle().InFlight
}

// Claim is the outcome of Store.Claim. When Claimed is false the caller must
// not enqueue: Record holds the existing in-flight or succeeded state.
type Claim struct {
	Claimed bool
	Record  *Record
}
