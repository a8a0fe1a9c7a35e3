// internal/models/application.go
package models

import "time"

type StatusChange struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
}

// Application links an applicant to a job. MatchScore (0-100) and
// RankingScore (0-1) are written together by the scoring job; RankingScore
// means nothing without MatchScore.
type Application struct {
	ID            string         `json:"id"`
	JobID         string         `json:"jobId"`
	ApplicantID   string         `json:"applicantId"`
	Status        string         `json:"status"`
	MatchScore    *float64       `json:"matchScore,omitempty"`
	RankingScore  *float64       `json:"rankingScore,omitempty"`
	AINotes       []string       `json:"aiNotes,omitempty"`
	AppliedAt     time.Time      `json:"appliedAt"`
	StatusHistory []StatusChange `json:"statusHistory,omitempty"`
}

// ApplicationBundle is an application joined with its job and the applicant's profile.
type ApplicationBundle struct {
	Application Application
	Job         Job
	Profile     Profile
}

// RerankCandidate is a scored application with the profile fields ranking reads.
type RerankCandidate struct {
	ApplicationID string
	MatchScore    float64
	Profile       Profile
}
