// internal/models/profile.go
package models

import (
	"fmt"
	"strings"
	"time"
)

type JobPreference string

const (
	PreferRemote JobPreference = "remote"
	PreferHybrid JobPreference = "hybrid"
	PreferOnsite JobPreference = "onsite"
)

type Experience struct {
	Role        string `json:"role"`
	CompanyName string `json:"companyName"`
	IsCurrent   bool   `json:"isCurrent"`
	Description string `json:"description,omitempty"`
}

type Education struct {
	Institution  string `json:"institution,omitempty"`
	Degree       string `json:"degree,omitempty"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty"`
}

type ProfileLocation struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type Profile struct {
	ID                     string          `json:"id"`
	UserID                 string          `json:"userId"`
	Headline               string          `json:"headline"`
	Summary                string          `json:"summary,omitempty"`
	Skills                 []string        `json:"skills"`
	Experience             []Experience    `json:"experience"`
	Education              []Education     `json:"education"`
	TotalYearsOfExperience float64         `json:"totalYearsOfExperience"`
	EmploymentType         EmploymentType  `json:"employmentType,omitempty"`
	Location               ProfileLocation `json:"location"`
	JobPreference          JobPreference   `json:"jobPreference"`
	IsDeleted              bool            `json:"isDeleted"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`
	EmbeddingDirty bool      `json:"embeddingDirty"`
	EmbeddingText  string    `json:"embeddingText,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileVersion is the cheap part of a profile row that moves on every edit.
// A cached profile whose version differs from the row's is stale.
type ProfileVersion struct {
	UpdatedAt      time.Time
	EmbeddingDirty bool
}

// Version returns the version a copy of p was taken at.
func (p *Profile) Version() ProfileVersion {
	return ProfileVersion{UpdatedAt: p.UpdatedAt, EmbeddingDirty: p.EmbeddingDirty}
}

// Matches reports whether both versions describe the same row state.
func (v ProfileVersion) Matches(other ProfileVersion) bool {
	return v.UpdatedAt.Equal(other.UpdatedAt) && v.EmbeddingDirty == other.EmbeddingDirty
}

// HasEmbedding reports whether the stored vector can be trusted. A dirty
// profile's vector describes an older version of the profile.
func (p *Profile) HasEmbedding() bool {
	return p != nil && len(p.Embedding) > 0 && !p.EmbeddingDirty
}

// CurrentRole returns the role marked current, if any.
func (p *Profile) CurrentRole() (Experience, bool) {
	for _, e := range p.Experience {
		if e.IsCurrent {
			return e, true
		}
	}
	return Experience{}, false
}

// ExperienceSummary renders the experience list as one line per role.
func (p *Profile) ExperienceSummary() string {
	lines := make([]string, 0, len(p.Experience))
	for _, e := range p.Experience {
		line := fmt.Sprintf("%s at %s", e.Role, e.CompanyName)
		if e.IsCurrent {
			line += " (current)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "; ")
}

// CanonicalText is the text embedded when the profile carries no precomputed
// EmbeddingText.
func (p *Profile) CanonicalText() string {
	if strings.TrimSpace(p.EmbeddingText) != "" {
		return p.EmbeddingText
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Headline:\n%s\n", p.Headline)
	if p.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", p.Summary)
	}
	fmt.Fprintf(&b, "\nSkills:\n%s\n", strings.Join(p.Skills, ", "))
	if len(p.Experience) > 0 {
		fmt.Fprintf(&b, "\nExperience:\n%s\n", p.ExperienceSummary())
	}
	fmt.Fprintf(&b, "\nTotal Years Of Experience:\n%v", p.TotalYearsOfExperience)
	return b.String()
}
