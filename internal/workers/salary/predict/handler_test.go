// internal/workers/salary/predict/handler_test.go
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/internal/artifact"
	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/jobsearch"
	"match-pipeline/internal/models"
	"match-pipeline/internal/queue"
	"match-pipeline/internal/salary"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeProfiles struct{ profile *models.Profile }

func (f *fakeProfiles) FindProfileByUser(_ context.Context, userID string) (*models.Profile, error) {
	if f.profile == nil {
		return nil, apperrors.NewEntityNotFoundError("profile for user", userID)
	}
	return f.profile, nil
}

type fakeArtifacts struct {
	touched     []touch
	key         artifact.Key
	generation  int64
	payload     []byte
	failed      []string
	completeErr error
}

func (f *fakeArtifacts) Complete(_ context.Context, key artifact.Key, generation int64, payload []byte) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.key, f.generation, f.payload = key, generation, payload
	return nil
}

func (f *fakeArtifacts) Fail(_ context.Context, _ artifact.Key, _ int64, reason string) error {
	f.failed = append(f.failed, reason)
	return nil
}

func (f *fakeArtifacts) Touch(_ context.Context, key artifact.Key, generation int64) error {
	f.touched = append(f.touched, touch{key, generation})
	return nil
}

type touch struct {
	key        artifact.Key
	generation int64
}

// poolPosting is an open, embedded Berlin posting the profile below is
// eligible for.
func poolPosting(id string, s models.Salary, embedding []float32) models.Job {
	return models.Job{
		ID:              id,
		Title:           "Backend Engineer",
		RequiredSkills:  []string{"PostgreSQL", "Docker"},
		ExperienceLevel: models.ExperienceMid,
		EmploymentType:  models.EmploymentFullTime,
		Salary:          s,
		Location:        models.JobLocation{City: "Berlin", Country: "Germany"},
		Status:          models.JobOpen,
		Embedding:       embedding,
	}
}

func amount(v float64) *float64 { return &v }

func testPool() []models.Job {
	return []models.Job{
		poolPosting("fixed", models.Salary{Type: models.SalaryFixed, Min: amount(60000), Currency: "EUR"}, []float32{1, 0}),
		poolPosting("range", models.Salary{Type: models.SalaryRange, Min: amount(70000), Max: amount(90000), Currency: "EUR"}, []float32{1, 0}),
		poolPosting("dissimilar", models.Salary{Type: models.SalaryFixed, Min: amount(150000), Currency: "EUR"}, []float32{0, 1}),
		poolPosting("dollars", models.Salary{Type: models.SalaryFixed, Min: amount(200000), Currency: "USD"}, []float32{1, 0}),
	}
}

func searchResponse(t *testing.T, jobs []models.Job) string {
	hits := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		hits = append(hits, map[string]interface{}{"_id": j.ID, "_source": j})
	}
	body, err := json.Marshal(map[string]interface{}{
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": len(jobs)},
			"hits":  hits,
		},
	})
	require.NoError(t, err)
	return string(body)
}

// newSearchIndex points a real jobsearch.Index at an in-process cluster.
func newSearchIndex(t *testing.T, status int, body string) (*jobsearch.Index, *atomic.Int32) {
	t.Helper()
	searches := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return jobsearch.New(client, "jobs", 5*time.Second, logger.NewNoOpLogger()), searches
}

func testProfile() *models.Profile {
	return &models.Profile{
		ID:                     "p-1",
		UserID:                 "u-1",
		Skills:                 []string{"Go", "PostgreSQL", "Kafka"},
		TotalYearsOfExperience: 3,
		EmploymentType:         models.EmploymentFullTime,
		Location:               models.ProfileLocation{City: "Berlin", Country: "Germany"},
		JobPreference:          models.PreferOnsite,
		Embedding:              []float32{1, 0},
	}
}

func testConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func newTestHandler(t *testing.T, profile *models.Profile, pool JobPool, arts ArtifactWriter) *Handler {
	return NewHandler(testConfig(), &fakeProfiles{profile: profile}, pool, salary.NewAggregator(salary.DefaultConfig(), logger.NewTestLogger(t)), arts, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestExecute_PredictsFromComparablePostings(t *testing.T) {
	index, searches := newSearchIndex(t, http.StatusOK, searchResponse(t, testPool()))
	arts := &fakeArtifacts{}
	h := newTestHandler(t, testProfile(), index, arts)

	prediction, err := h.Execute(context.Background(), &Input{UserID: "u-1", Generation: 6})
	require.NoError(t, err)

	assert.Equal(t, int32(1), searches.Load())
	assert.Equal(t, "EUR", prediction.Currency)
	assert.Equal(t, 2, prediction.SampleSize)
	assert.InDelta(t, 65000, prediction.Min, 0.001)
	assert.InDelta(t, 70000, prediction.Median, 0.001)
	assert.InDelta(t, 75000, prediction.Max, 0.001)
	assert.Equal(t, salary.ConfidenceLow, prediction.Confidence)

	assert.Equal(t, artifact.SalaryPredictionKey("u-1"), arts.key)
	assert.Equal(t, int64(6), arts.generation)
	assert.Equal(t, []touch{{artifact.SalaryPredictionKey("u-1"), 6}}, arts.touched)

	var stored salary.Prediction
	require.NoError(t, json.Unmarshal(arts.payload, &stored))
	assert.Equal(t, *prediction, stored)
}

func TestExecute_EmptySampleStillCompletes(t *testing.T) {
	index, _ := newSearchIndex(t, http.StatusOK, searchResponse(t, nil))
	arts := &fakeArtifacts{}
	h := newTestHandler(t, testProfile(), index, arts)

	prediction, err := h.Execute(context.Background(), &Input{UserID: "u-1", Generation: 1})
	require.NoError(t, err)
	assert.Zero(t, prediction.SampleSize)
	assert.Zero(t, prediction.Median)
	assert.Equal(t, salary.ConfidenceLow, prediction.Confidence)
	assert.NotNil(t, arts.payload)
}

func TestExecute_Failures(t *testing.T) {
	dirty := testProfile()
	dirty.EmbeddingDirty = true

	noCountry := testProfile()
	noCountry.Location.Country = ""

	tests := []struct {
		name          string
		profile       *models.Profile
		status        int
		wantCode      apperrors.ErrorCode
		wantRetryable bool
		wantSearch    bool
	}{
		{"profile missing", nil, http.StatusOK, apperrors.ErrCodeEntityNotFound, false, false},
		{"embedding is stale", dirty, http.StatusOK, apperrors.ErrCodeEmbeddingMissing, false, false},
		{"country missing", noCountry, http.StatusOK, apperrors.ErrCodeValidationFailed, false, false},
		{"search fails", testProfile(), http.StatusInternalServerError, apperrors.ErrCodeSearchQueryFailed, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := searchResponse(t, testPool())
			if tt.status != http.StatusOK {
				body = `{"error":{"type":"search_phase_execution_exception"}}`
			}
			index, searches := newSearchIndex(t, tt.status, body)
			arts := &fakeArtifacts{}
			h := newTestHandler(t, tt.profile, index, arts)

			_, err := h.Execute(context.Background(), &Input{UserID: "u-1", Generation: 1})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.wantRetryable, apperrors.IsRetryable(err))
			assert.Equal(t, tt.wantSearch, searches.Load() > 0)
			assert.Nil(t, arts.payload)
		})
	}
}

func TestExecute_SupersededPredictionIsDropped(t *testing.T) {
	index, _ := newSearchIndex(t, http.StatusOK, searchResponse(t, testPool()))
	h := newTestHandler(t, testProfile(), index, &fakeArtifacts{completeErr: artifact.ErrStaleTransition})

	_, err := h.Execute(context.Background(), &Input{UserID: "u-1", Generation: 1})
	assert.NoError(t, err)
}

// ==========================
// Handle / RecordFailure
// ==========================

func TestHandle_MalformedPayload(t *testing.T) {
	h := newTestHandler(t, testProfile(), nil, &fakeArtifacts{})

	err := h.Handle(context.Background(), &queue.Job{ID: "q-1", Kind: TaskType, Payload: json.RawMessage(`[]`)})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePayloadInvalid, apperrors.CodeOf(err))
}

func TestRecordFailure_FailsProcessingArtifact(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE generation_artifacts`).
		WithArgs("failed", "search unavailable", sqlmock.AnyArg(), "salary_prediction", "u-1", "", "processing", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := newTestHandler(t, testProfile(), nil, artifact.NewStore(db))
	job := &queue.Job{ID: "q-1", Kind: TaskType, Payload: json.RawMessage(`{"userId":"u-1","generation":3}`)}

	require.NoError(t, h.RecordFailure(context.Background(), job, errors.New("search unavailable")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
