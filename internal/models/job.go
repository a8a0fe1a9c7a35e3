// internal/models/job.go
package models

import (
	"fmt"
	"strings"
	"time"
)

type ExperienceLevel string

const (
	ExperienceJunior ExperienceLevel = "junior"
	ExperienceMid    ExperienceLevel = "mid"
	ExperienceSenior ExperienceLevel = "senior"
	ExperienceLead   ExperienceLevel = "lead"
)

type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
)

type JobStatus string

const (
	JobDraft    JobStatus = "draft"
	JobOpen     JobStatus = "open"
	JobClosed   JobStatus = "closed"
	JobArchived JobStatus = "archived"
)

type SalaryType string

const (
	SalaryFixed        SalaryType = "fixed"
	SalaryRange        SalaryType = "range"
	SalaryNegotiable   SalaryType = "negotiable"
	SalaryNotDisclosed SalaryType = "not_disclosed"
)

type Salary struct {
	Type     SalaryType `json:"type"`
	Min      *float64   `json:"min,omitempty"`
	Max      *float64   `json:"max,omitempty"`
	Currency string     `json:"currency"`
	RawText  string     `json:"rawText,omitempty"`
}

type JobLocation struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	Remote  bool   `json:"remote"`
}

// RankingConfig holds the employer-chosen weights of each ranking factor.
// Weights are non-negative and are expected, not required, to sum to at most 1.
type RankingConfig struct {
	Name            string  `json:"name"`
	MatchScore      float64 `json:"matchScore"`
	TitleMatch      float64 `json:"titleMatch"`
	Skills          float64 `json:"skills"`
	ExperienceYears float64 `json:"experienceYears"`
	EmploymentType  float64 `json:"employmentType"`
	FieldOfStudy    float64 `json:"fieldOfStudy"`
	Recency         float64 `json:"recency"`
}

// Validate rejects negative weights.
func (c RankingConfig) Validate() error {
	weights := map[string]float64{
		"matchScore":      c.MatchScore,
		"titleMatch":      c.TitleMatch,
		"skills":          c.Skills,
		"experienceYears": c.ExperienceYears,
		"employmentType":  c.EmploymentType,
		"fieldOfStudy":    c.FieldOfStudy,
		"recency":         c.Recency,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("ranking weight %s must not be negative (got %v)", name, w)
		}
	}
	return nil
}

type Job struct {
	ID               string          `json:"id"`
	CompanyID        string          `json:"companyId"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Responsibilities []string        `json:"responsibilities,omitempty"`
	RequiredSkills   []string        `json:"requiredSkills"`
	ExperienceLevel  ExperienceLevel `json:"experienceLevel"`
	EmploymentType   EmploymentType  `json:"employmentType"`
	Qualifications   string          `json:"qualifications,omitempty"`
	FieldsOfStudy    []string        `json:"fieldsOfStudy,omitempty"`
	Salary           Salary          `json:"salary"`
	Location         JobLocation     `json:"location"`
	Status           JobStatus       `json:"status"`
	IsDeleted        bool            `json:"isDeleted"`
	RankingConfig    RankingConfig   `json:"rankingConfig"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`
	EmbeddingDirty bool      `json:"embeddingDirty"`
	EmbeddingText  string    `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasEmbedding reports whether the stored vector can be trusted.
func (j *Job) HasEmbedding() bool {
	return j != nil && len(j.Embedding) > 0 && !j.EmbeddingDirty
}

// CanonicalText is the text embedded for semantic matching.
func (j *Job) CanonicalText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job Title:\n%s\n\nJob Description:\n%s\n", j.Title, j.Description)
	if len(j.Responsibilities) > 0 {
		b.WriteString("\nResponsibilities:\n")
		for _, r := range j.Responsibilities {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintf(&b, "\nRequired Skills:\n%s\n", strings.Join(j.RequiredSkills, ", "))
	if j.Qualifications != "" {
		fmt.Fprintf(&b, "\nQualifications:\n%s\n", j.Qualifications)
	}
	fmt.Fprintf(&b, "\nExperience Level:\n%s", j.ExperienceLevel)
	return b.String()
}
