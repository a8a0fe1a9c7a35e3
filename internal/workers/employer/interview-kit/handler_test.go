// internal/workers/employer/interview-kit/handler_test.go
package interviewkit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/ratelimit"
	"match-pipeline/internal/models"
	"match-pipeline/internal/queue"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeJobs struct{ job *models.Job }

func (f *fakeJobs) FindJob(_ context.Context, jobID string) (*models.Job, error) {
	if f.job == nil {
		return nil, apperrors.NewEntityNotFoundError("job", jobID)
	}
	return f.job, nil
}

type fakeGenerator struct {
	response string
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.response, nil
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTouch is the heartbeat every execution starts with.
func expectTouch(mock sqlmock.Sqlmock, generation int64) {
	mock.ExpectExec(`UPDATE generation_artifacts\s+SET updated_at = \$1`).
		WithArgs(sqlmock.AnyArg(), "interview_kit", "job-1", "", "generating", generation).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func kitJSON(questions int, category string) string {
	kit := Kit{Strategy: "Probe safety habits first"}
	for i := 0; i < questions; i++ {
		kit.Questions = append(kit.Questions, Question{
			ID:                fmt.Sprintf("k%d", i+1),
			Question:          "Walk me through your pre-shift checks.",
			Category:          category,
			Intent:            "Shows whether checks are habitual",
			GoodAnswerSignals: []string{"checklist", "reports defects"},
			RedFlags:          []string{"skips checks"},
			ScoreRubric:       ScoreRubric{Score1: "No routine", Score3: "Some routine", Score5: "Documented routine"},
		})
	}
	b, _ := json.Marshal(kit)
	return string(b)
}

func testJob() *models.Job {
	return &models.Job{ID: "job-1", Title: "Forklift Operator", Description: "Warehouse role", RequiredSkills: []string{"Forklift license"}}
}

func testConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

// ==========================
// Execute
// ==========================

func TestExecute_StoresKit(t *testing.T) {
	db, mock := setupMockDB(t)
	expectTouch(mock, 5)
	mock.ExpectExec(`UPDATE generation_artifacts`).
		WithArgs("generated", sqlmock.AnyArg(), sqlmock.AnyArg(), "interview_kit", "job-1", "", "generating", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	gen := &fakeGenerator{response: kitJSON(KitSize, "Operational_Knowledge")}
	h := NewHandler(testConfig(), &fakeJobs{job: testJob()}, gen, ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))

	kit, err := h.Execute(context.Background(), &Input{JobID: "job-1", Generation: 5})
	require.NoError(t, err)
	assert.Len(t, kit.Questions, KitSize)
	assert.Equal(t, "Documented routine", kit.Questions[0].ScoreRubric.Score5)
	assert.Contains(t, gen.prompts[0], "Forklift Operator")
	assert.Contains(t, gen.prompts[0], "exactly 7")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_SupersededGeneration(t *testing.T) {
	db, mock := setupMockDB(t)
	expectTouch(mock, 1)
	mock.ExpectExec(`SET status = \$1, payload = \$2`).WillReturnResult(sqlmock.NewResult(0, 0))

	h := NewHandler(testConfig(), &fakeJobs{job: testJob()}, &fakeGenerator{response: kitJSON(KitSize, "Culture_Values")},
		ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{JobID: "job-1", Generation: 1})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_RejectsInvalidKits(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"six questions", kitJSON(6, "Core_Competency")},
		{"eight questions", kitJSON(8, "Core_Competency")},
		{"unknown category", kitJSON(KitSize, "Trivia")},
		{"missing rubric", `{"strategy":"s","questions":[{"id":"1","question":"q","category":"Core_Competency","intent":"i","good_answer_signals":[],"red_flags":[]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			expectTouch(mock, 1)
			h := NewHandler(testConfig(), &fakeJobs{job: testJob()}, &fakeGenerator{response: tt.response},
				ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))

			_, err := h.Execute(context.Background(), &Input{JobID: "job-1", Generation: 1})
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeResponseInvalid, apperrors.CodeOf(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecute_MissingJob(t *testing.T) {
	db, mock := setupMockDB(t)
	expectTouch(mock, 1)
	gen := &fakeGenerator{}
	h := NewHandler(testConfig(), &fakeJobs{}, gen, ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{JobID: "job-1", Generation: 1})
	assert.Equal(t, apperrors.ErrCodeEntityNotFound, apperrors.CodeOf(err))
	assert.Empty(t, gen.prompts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_HeartbeatFailureDoesNotFailJob(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`SET updated_at = \$1`).WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(`SET status = \$1, payload = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandler(testConfig(), &fakeJobs{job: testJob()}, &fakeGenerator{response: kitJSON(KitSize, "Core_Competency")},
		ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{JobID: "job-1", Generation: 1})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// RecordFailure
// ==========================

func TestRecordFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`UPDATE generation_artifacts`).
		WithArgs("failed", "StandardError[RESPONSE_INVALID]: Generated response failed validation (bad)", sqlmock.AnyArg(), "interview_kit", "job-1", "", "generating", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandler(testConfig(), &fakeJobs{}, &fakeGenerator{}, ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))
	job := &queue.Job{ID: "q-1", Kind: TaskType, Payload: json.RawMessage(`{"jobId":"job-1","generation":2}`)}

	require.NoError(t, h.RecordFailure(context.Background(), job, apperrors.NewResponseInvalidError("bad")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`UPDATE generation_artifacts`).WillReturnError(errors.New("connection reset"))

	h := NewHandler(testConfig(), &fakeJobs{}, &fakeGenerator{}, ratelimit.Unlimited{}, artifact.NewStore(db), logger.NewTestLogger(t))
	job := &queue.Job{ID: "q-1", Kind: TaskType, Payload: json.RawMessage(`{"jobId":"job-1","generation":2}`)}

	err := h.RecordFailure(context.Background(), job, errors.New("boom"))
	assert.Equal(t, apperrors.ErrCodeDatabaseQueryFailed, apperrors.CodeOf(err))
}
