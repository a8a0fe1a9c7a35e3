// internal/jobsearch/index_test.go
package jobsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/models"
	"match-pipeline/internal/salary"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r *http.Request) (int, string)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	status, payload := f.respond(r)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (f *fakeCluster) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestIndex(t *testing.T, respond func(r *http.Request) (int, string)) (*Index, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{respond: respond}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	return New(client, "jobs", 5*time.Second, logger.NewTestLogger(t)), cluster
}

// ==========================
// Query building
// ==========================

func TestBuildPoolQuery(t *testing.T) {
	tests := []struct {
		name        string
		query       salary.PoolQuery
		wantFilters int
		wantMust    bool
		wantCountry bool
	}{
		{
			name: "onsite with currency",
			query: salary.PoolQuery{
				Skills: []string{"go", "sql"}, EmploymentType: models.EmploymentFullTime,
				Country: "Germany", Currency: "EUR", Limit: 2000,
			},
			wantFilters: 7, wantMust: true, wantCountry: true,
		},
		{
			name:        "remote without skills",
			query:       salary.PoolQuery{EmploymentType: models.EmploymentContract, Currency: "USD"},
			wantFilters: 6, wantMust: false, wantCountry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := BuildPoolQuery(tt.query)

			raw, err := json.Marshal(q)
			require.NoError(t, err)

			var decoded struct {
				Query struct {
					Bool struct {
						Filter []map[string]interface{} `json:"filter"`
						Must   []map[string]interface{} `json:"must"`
					} `json:"bool"`
				} `json:"query"`
			}
			require.NoError(t, json.Unmarshal(raw, &decoded))

			assert.Len(t, decoded.Query.Bool.Filter, tt.wantFilters)
			assert.Equal(t, tt.wantMust, len(decoded.Query.Bool.Must) > 0)
			assert.Equal(t, tt.wantCountry, strings.Contains(string(raw), "location.country"))
			assert.Contains(t, string(raw), `"salary.type":["fixed","range"]`)
		})
	}
}

// ==========================
// Index operations
// ==========================

func TestIndex_IndexJob(t *testing.T) {
	idx, cluster := newTestIndex(t, func(r *http.Request) (int, string) {
		return http.StatusCreated, `{"result":"created","_id":"job-1"}`
	})

	job := &models.Job{ID: "job-1", Title: "Data Engineer", Embedding: []float32{0.5, 0.25}}
	require.NoError(t, idx.IndexJob(context.Background(), job))

	req := cluster.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/jobs/_doc/job-1", req.Path)
	assert.Contains(t, req.Body, `"embedding":[0.5,0.25]`)
}

func TestIndex_IndexJob_ClusterError(t *testing.T) {
	idx, _ := newTestIndex(t, func(r *http.Request) (int, string) {
		return http.StatusInternalServerError, `{"error":"shard failure"}`
	})

	err := idx.IndexJob(context.Background(), &models.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSearchQueryFailed, errors.CodeOf(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestIndex_CandidatePool(t *testing.T) {
	response := `{
		"took": 3,
		"hits": {
			"total": {"value": 2},
			"hits": [
				{"_source": {"id": "job-1", "status": "open", "experienceLevel": "mid",
					"salary": {"type": "fixed", "min": 60000, "currency": "EUR"},
					"embedding": [1, 0]}},
				{"_source": {"id": "job-2", "status": "open", "experienceLevel": "senior",
					"salary": {"type": "range", "min": 70000, "max": 90000, "currency": "EUR"},
					"embedding": [0.9, 0.1]}}
			]
		}
	}`
	idx, cluster := newTestIndex(t, func(r *http.Request) (int, string) {
		return http.StatusOK, response
	})

	jobs, err := idx.CandidatePool(context.Background(), salary.PoolQuery{
		Skills: []string{"go"}, EmploymentType: models.EmploymentFullTime, Country: "Germany", Currency: "EUR", Limit: 2000,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[1].ID)
	assert.Equal(t, models.ExperienceSenior, jobs[1].ExperienceLevel)
	require.NotNil(t, jobs[1].Salary.Max)
	assert.Equal(t, 90000.0, *jobs[1].Salary.Max)
	assert.Equal(t, []float32{1, 0}, jobs[0].Embedding)

	req := cluster.last()
	assert.Equal(t, "/jobs/_search", req.Path)
	assert.Contains(t, req.Body, `"location.country":"Germany"`)
}

func TestIndex_CandidatePool_BadResponse(t *testing.T) {
	idx, _ := newTestIndex(t, func(r *http.Request) (int, string) {
		return http.StatusOK, `{"hits": [`
	})

	_, err := idx.CandidatePool(context.Background(), salary.PoolQuery{Limit: 10})
	assert.Equal(t, errors.ErrCodeSearchQueryFailed, errors.CodeOf(err))
}

func TestIndex_EnsureIndex(t *testing.T) {
	tests := []struct {
		name         string
		existsStatus int
		createStatus int
		createBody   string
		wantErr      bool
		wantRequests int
	}{
		{"already exists", http.StatusOK, 0, "", false, 1},
		{"created", http.StatusNotFound, http.StatusOK, `{"acknowledged":true}`, false, 2},
		{"lost creation race", http.StatusNotFound, http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception"}}`, false, 2},
		{"create rejected", http.StatusNotFound, http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception"}}`, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, cluster := newTestIndex(t, func(r *http.Request) (int, string) {
				if r.Method == http.MethodHead {
					return tt.existsStatus, ""
				}
				return tt.createStatus, tt.createBody
			})

			err := idx.EnsureIndex(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, cluster.requests, tt.wantRequests)
		})
	}
}
