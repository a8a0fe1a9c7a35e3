// internal/workers/embedding/job-embedding/handler_test.go
package jobembedding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/models"
	"match-pipeline/internal/queue"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeJobs struct {
	job     *models.Job
	findErr error
	saveErr error

	savedID    string
	savedVec   []float32
	savedModel string
	readAt     time.Time
}

func (f *fakeJobs) FindJob(_ context.Context, jobID string) (*models.Job, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.job == nil || f.job.ID != jobID {
		return nil, apperrors.NewEntityNotFoundError("job", jobID)
	}
	cp := *f.job
	return &cp, nil
}

func (f *fakeJobs) SaveJobEmbedding(_ context.Context, jobID string, embedding []float32, model string, readAt time.Time) error {
	f.readAt = readAt
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedID, f.savedVec, f.savedModel = jobID, embedding, model
	return nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbeddingModel() string { return "gemini-embedding-001" }

type fakeIndex struct {
	indexed []*models.Job
	err     error
}

func (f *fakeIndex) IndexJob(_ context.Context, job *models.Job) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, job)
	return nil
}

func createTestJob() *models.Job {
	return &models.Job{
		ID:              "job-1",
		Title:           "Backend Engineer",
		Description:     "Build APIs",
		RequiredSkills:  []string{"Go", "PostgreSQL"},
		ExperienceLevel: models.ExperienceMid,
		EmploymentType:  models.EmploymentFullTime,
		Status:          models.JobOpen,
		EmbeddingDirty:  true,
		UpdatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newQueueJob(payload string) *queue.Job {
	return &queue.Job{
		ID:          "q-1",
		Queue:       "embedding",
		Kind:        TaskType,
		Payload:     json.RawMessage(payload),
		Attempt:     1,
		MaxAttempts: 3,
	}
}

func newTestHandler(t *testing.T, jobs *fakeJobs, emb *fakeEmbedder, idx *fakeIndex) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, jobs, emb, idx, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestExecute_EmbedsSavesAndIndexes(t *testing.T) {
	jobs := &fakeJobs{job: createTestJob()}
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	idx := &fakeIndex{}
	h := newTestHandler(t, jobs, emb, idx)

	out, err := h.Execute(context.Background(), &Input{JobID: "job-1"})
	require.NoError(t, err)

	assert.False(t, out.Skipped)
	assert.Equal(t, 3, out.Dimensions)
	assert.Equal(t, "gemini-embedding-001", out.Model)

	require.Len(t, emb.texts, 1)
	assert.Contains(t, emb.texts[0], "Backend Engineer")
	assert.Contains(t, emb.texts[0], "Go, PostgreSQL")

	assert.Equal(t, "job-1", jobs.savedID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, jobs.savedVec)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), jobs.readAt)

	require.Len(t, idx.indexed, 1)
	assert.False(t, idx.indexed[0].EmbeddingDirty)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, idx.indexed[0].Embedding)
}

func TestExecute_MissingJobIsNoOp(t *testing.T) {
	jobs := &fakeJobs{}
	emb := &fakeEmbedder{vector: []float32{1}}
	idx := &fakeIndex{}
	h := newTestHandler(t, jobs, emb, idx)

	out, err := h.Execute(context.Background(), &Input{JobID: "gone"})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Empty(t, emb.texts)
	assert.Empty(t, idx.indexed)
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name          string
		jobs          *fakeJobs
		emb           *fakeEmbedder
		idx           *fakeIndex
		wantCode      apperrors.ErrorCode
		wantRetryable bool
	}{
		{
			name:          "database down",
			jobs:          &fakeJobs{findErr: apperrors.NewDatabaseQueryFailedError("find job", errors.New("conn refused"))},
			emb:           &fakeEmbedder{},
			idx:           &fakeIndex{},
			wantCode:      apperrors.ErrCodeDatabaseQueryFailed,
			wantRetryable: true,
		},
		{
			name:          "embedding call fails",
			jobs:          &fakeJobs{job: createTestJob()},
			emb:           &fakeEmbedder{err: apperrors.NewEmbeddingFailedError(errors.New("503"))},
			idx:           &fakeIndex{},
			wantCode:      apperrors.ErrCodeEmbeddingFailed,
			wantRetryable: true,
		},
		{
			name:          "job edited while embedding",
			jobs:          &fakeJobs{job: createTestJob(), saveErr: apperrors.NewConcurrentUpdateError("job", "job-1")},
			emb:           &fakeEmbedder{vector: []float32{1, 0}},
			idx:           &fakeIndex{},
			wantCode:      apperrors.ErrCodeConcurrentUpdate,
			wantRetryable: true,
		},
		{
			name:          "index write fails",
			jobs:          &fakeJobs{job: createTestJob()},
			emb:           &fakeEmbedder{vector: []float32{1, 0}},
			idx:           &fakeIndex{err: apperrors.NewSearchQueryFailedError("jobs", errors.New("shard failure"))},
			wantCode:      apperrors.ErrCodeSearchQueryFailed,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.jobs, tt.emb, tt.idx)
			_, err := h.Execute(context.Background(), &Input{JobID: "job-1"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.wantRetryable, apperrors.IsRetryable(err))
		})
	}
}

// ==========================
// Handle
// ==========================

func TestHandle_DecodesPayload(t *testing.T) {
	jobs := &fakeJobs{job: createTestJob()}
	h := newTestHandler(t, jobs, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{})

	require.NoError(t, h.Handle(context.Background(), newQueueJob(`{"jobId":"job-1"}`)))
	assert.Equal(t, "job-1", jobs.savedID)
}

func TestHandle_MalformedPayload(t *testing.T) {
	h := newTestHandler(t, &fakeJobs{}, &fakeEmbedder{}, &fakeIndex{})

	err := h.Handle(context.Background(), newQueueJob(`{"jobId":`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePayloadInvalid, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRetryable(err))
}
