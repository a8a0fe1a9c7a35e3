// internal/salary/aggregator.go
package salary

import (
	"strings"

	"match-pipeline/internal/common/config"
	"match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/metrics"
	"match-pipeline/internal/matching"
	"match-pipeline/internal/models"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Config holds the aggregation constants.
type Config struct {
	// SimilarityThreshold is the exclusive lower bound on the match score
	// (0..100) a job needs to enter the sample.
	SimilarityThreshold float64
	// Percentiles are the min, median and max bands, in that order.
	Percentiles  [3]float64
	HighSample   int
	MediumSample int
	PoolLimit    int
	TopSkills    int
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 70,
		Percentiles:         [3]float64{25, 50, 75},
		HighSample:          80,
		MediumSample:        30,
		PoolLimit:           2000,
		TopSkills:           3,
	}
}

// ConfigFrom builds a Config from the loaded salary section. Zero fields fall
// back to the defaults.
func ConfigFrom(c config.SalaryConfig) Config {
	cfg := DefaultConfig()
	if c.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = c.SimilarityThreshold
	}
	if len(c.Percentiles) == 3 {
		copy(cfg.Percentiles[:], c.Percentiles)
	}
	if c.HighSample > 0 {
		cfg.HighSample = c.HighSample
	}
	if c.MediumSample > 0 {
		cfg.MediumSample = c.MediumSample
	}
	if c.PoolLimit > 0 {
		cfg.PoolLimit = c.PoolLimit
	}
	if c.TopSkills > 0 {
		cfg.TopSkills = c.TopSkills
	}
	return cfg
}

// ConfidenceFor maps a sample size to a confidence tier.
func (c Config) ConfidenceFor(sample int) Confidence {
	switch {
	case sample >= c.HighSample:
		return ConfidenceHigh
	case sample >= c.MediumSample:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PoolQuery describes the coarse candidate pool fetched from the search
// index before the in-memory filters run.
type PoolQuery struct {
	Skills         []string
	EmploymentType models.EmploymentType
	// Country is empty when the candidate prefers remote work.
	Country  string
	Currency string
	Limit    int
}

// BuildPoolQuery derives the pool query for a profile. A profile without a
// country cannot be predicted.
func (c Config) BuildPoolQuery(profile *models.Profile) (PoolQuery, error) {
	country := strings.TrimSpace(profile.Location.Country)
	if country == "" {
		return PoolQuery{}, errors.NewValidationFailedError("profile country is required for salary prediction")
	}

	q := PoolQuery{
		Skills:         TopSkills(profile.Skills, c.TopSkills),
		EmploymentType: profile.EmploymentType,
		Limit:          c.PoolLimit,
	}
	if profile.JobPreference != models.PreferRemote {
		q.Country = country
	}
	q.Currency, _ = CurrencyForCountry(country)
	return q, nil
}

// Prediction is the stored result of a salary prediction.
type Prediction struct {
	Currency   string     `json:"currency"`
	Min        float64    `json:"min"`
	Median     float64    `json:"median"`
	Max        float64    `json:"max"`
	Confidence Confidence `json:"confidence"`
	SampleSize int        `json:"sampleSize"`
}

// Aggregator turns a candidate pool into a Prediction.
type Aggregator struct {
	cfg    Config
	logger logger.Logger
}

func NewAggregator(cfg Config, log logger.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, logger: log}
}

func (a *Aggregator) Config() Config {
	return a.cfg
}

// Predict filters pool down to jobs comparable to the profile and computes
// the percentile bands of their salaries. Jobs whose salary cannot be
// normalized are left out with a warning; jobs whose embedding has another
// dimension are left out silently.
func (a *Aggregator) Predict(profile *models.Profile, pool []models.Job) (*Prediction, error) {
	if !profile.HasEmbedding() {
		return nil, errors.NewEmbeddingMissingError("profile " + profile.ID)
	}
	q, err := a.cfg.BuildPoolQuery(profile)
	if err != nil {
		return nil, err
	}

	salaries := make([]float64, 0, len(pool))
	for i := range pool {
		job := &pool[i]
		if !a.eligible(profile, job, q) {
			continue
		}

		norm, err := NormalizeSalary(job.Salary)
		if err != nil {
			a.reportUnusable(job, err)
			continue
		}
		if norm == nil {
			continue
		}

		score, err := matching.CosineSimilarity(profile.Embedding, job.Embedding)
		if err != nil || score <= a.cfg.SimilarityThreshold {
			continue
		}
		salaries = append(salaries, norm.Value)
	}

	return &Prediction{
		Currency:   q.Currency,
		Min:        Percentile(salaries, a.cfg.Percentiles[0]),
		Median:     Percentile(salaries, a.cfg.Percentiles[1]),
		Max:        Percentile(salaries, a.cfg.Percentiles[2]),
		Confidence: a.cfg.ConfidenceFor(len(salaries)),
		SampleSize: len(salaries),
	}, nil
}

func (a *Aggregator) reportUnusable(job *models.Job, err error) {
	reason := "unknown_shape"
	if err == ErrFixedRangeMismatch {
		reason = "fixed_range_mismatch"
	}
	metrics.SalaryUnusable.WithLabelValues(reason).Inc()
	a.logger.Warn("job salary cannot be normalized, left out of the sample", map[string]interface{}{
		"jobId":      job.ID,
		"salaryType": string(job.Salary.Type),
		"error":      err.Error(),
	})
}

// eligible applies the hard filters. The search index applies most of them
// already; they are repeated here so Predict is correct on any pool.
func (a *Aggregator) eligible(profile *models.Profile, job *models.Job, q PoolQuery) bool {
	if job.Status != models.JobOpen || job.IsDeleted || !job.HasEmbedding() {
		return false
	}
	if job.EmploymentType != profile.EmploymentType {
		return false
	}
	if !IsExperienceCompatible(profile.TotalYearsOfExperience, job.ExperienceLevel) {
		return false
	}
	if q.Country != "" && !strings.EqualFold(strings.TrimSpace(job.Location.Country), q.Country) {
		return false
	}
	if q.Currency != "" && job.Salary.Currency != "" && !strings.EqualFold(job.Salary.Currency, q.Currency) {
		return false
	}
	if len(q.Skills) > 0 && !sharesSkill(q.Skills, job.RequiredSkills) {
		return false
	}
	return true
}

// sharesSkill reports whether one of the candidate's top skills (already
// lowercased) is required by the job.
func sharesSkill(top, required []string) bool {
	for _, r := range required {
		r = strings.ToLower(strings.TrimSpace(r))
		for _, s := range top {
			if r == s {
				return true
			}
		}
	}
	return false
}
