// internal/jobsearch/index.go
package jobsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/models"
	"match-pipeline/internal/salary"
)

const DefaultIndex = "jobs"

// Index is the jobs search index. Job documents are the JSON form of
// models.Job, embedding included.
type Index struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func New(client *elasticsearch.Client, index string, timeout time.Duration, log logger.Logger) *Index {
	if index == "" {
		index = DefaultIndex
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Index{
		client:  client,
		index:   index,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"index": index}),
	}
}

func (i *Index) Name() string {
	return i.index
}

var indexMapping = map[string]interface{}{
	"settings": map[string]interface{}{
		"analysis": map[string]interface{}{
			"normalizer": map[string]interface{}{
				"lowercase": map[string]interface{}{
					"type":   "custom",
					"filter": []string{"lowercase"},
				},
			},
		},
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"title":           map[string]interface{}{"type": "text"},
			"description":     map[string]interface{}{"type": "text"},
			"requiredSkills":  map[string]interface{}{"type": "text"},
			"experienceLevel": map[string]interface{}{"type": "keyword"},
			"employmentType":  map[string]interface{}{"type": "keyword"},
			"status":          map[string]interface{}{"type": "keyword"},
			"isDeleted":       map[string]interface{}{"type": "boolean"},
			"embeddingDirty":  map[string]interface{}{"type": "boolean"},
			"embedding":       map[string]interface{}{"type": "float", "index": false},
			"salary": map[string]interface{}{
				"properties": map[string]interface{}{
					"type":     map[string]interface{}{"type": "keyword"},
					"min":      map[string]interface{}{"type": "double"},
					"max":      map[string]interface{}{"type": "double"},
					"currency": map[string]interface{}{"type": "keyword", "normalizer": "lowercase"},
				},
			},
			"location": map[string]interface{}{
				"properties": map[string]interface{}{
					"country": map[string]interface{}{"type": "keyword", "normalizer": "lowercase"},
					"city":    map[string]interface{}{"type": "keyword"},
					"remote":  map[string]interface{}{"type": "boolean"},
				},
			},
		},
	},
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (i *Index) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return apperrors.NewSearchQueryFailedError(i.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, _ := json.Marshal(indexMapping)
	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(bytes.NewReader(body)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(i.index, err)
	}
	defer res.Body.Close()

	// another worker may have created it in between
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return apperrors.NewSearchQueryFailedError(i.index, fmt.Errorf("create index: %s", res.Status()))
	}
	i.logger.Info("jobs index ready", nil)
	return nil
}

// IndexJob writes (or replaces) the job document.
func (i *Index) IndexJob(ctx context.Context, job *models.Job) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	body, err := json.Marshal(job)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(i.index, fmt.Errorf("encode job %s: %w", job.ID, err))
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: job.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewSearchQueryFailedError(i.index, fmt.Errorf("index job %s: %s", job.ID, res.String()))
	}
	return nil
}

// CandidatePool returns open, embedded jobs with a fixed or range salary that
// match the pool query. Experience, similarity and salary normalization are
// applied afterwards by the aggregator.
func (i *Index) CandidatePool(ctx context.Context, q salary.PoolQuery) ([]models.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	size := q.Limit
	if size <= 0 {
		size = 2000
	}

	body, _ := json.Marshal(BuildPoolQuery(q))
	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	start := time.Now()
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError(i.index, fmt.Errorf("search failed: %s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(i.index, fmt.Errorf("decode response: %w", err))
	}

	jobs := make([]models.Job, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		jobs = append(jobs, hit.Source)
	}

	i.logger.Debug("candidate pool fetched", map[string]interface{}{
		"hits":     len(jobs),
		"total":    r.Hits.Total.Value,
		"duration": time.Since(start).Milliseconds(),
	})
	return jobs, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.Job `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// BuildPoolQuery renders the bool query for the salary candidate pool.
func BuildPoolQuery(q salary.PoolQuery) map[string]interface{} {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": string(models.JobOpen)}},
		map[string]interface{}{"term": map[string]interface{}{"isDeleted": false}},
		map[string]interface{}{"exists": map[string]interface{}{"field": "embedding"}},
		map[string]interface{}{"terms": map[string]interface{}{
			"salary.type": []string{string(models.SalaryFixed), string(models.SalaryRange)},
		}},
	}
	if q.EmploymentType != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"employmentType": string(q.EmploymentType)},
		})
	}
	if q.Country != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"location.country": q.Country},
		})
	}
	if q.Currency != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"salary.currency": q.Currency},
		})
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if len(q.Skills) > 0 {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{"match": map[string]interface{}{
				"requiredSkills": map[string]interface{}{
					"query":    strings.Join(q.Skills, " "),
					"operator": "or",
				},
			}},
		}
	}

	return map[string]interface{}{
		"query":   map[string]interface{}{"bool": boolQuery},
		"_source": []string{"id", "title", "requiredSkills", "embedding", "embeddingDirty", "salary", "experienceLevel", "employmentType", "location", "status", "isDeleted"},
	}
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(r)
	return string(b)
}
