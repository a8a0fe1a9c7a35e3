// internal/matching/rank.go
package matching

import (
	"regexp"
	"sort"
	"strings"

	"match-pipeline/internal/models"
)

const (
	// skillMatchThreshold is the skill ratio at which a candidate counts as skill-matched.
	skillMatchThreshold = 0.4
	// recencyThreshold is the share of current-role tokens that must appear in the description.
	recencyThreshold = 0.59
)

var requiredYears = map[models.ExperienceLevel]float64{
	models.ExperienceJunior: 0,
	models.ExperienceMid:    2,
	models.ExperienceSenior: 5,
	models.ExperienceLead:   8,
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Breakdown is the result of ranking one profile against one job.
type Breakdown struct {
	MatchScore      float64 `json:"matchScore"`
	TitleScore      float64 `json:"titleScore"`
	SkillScore      float64 `json:"skillScore"`
	ExperienceScore float64 `json:"experienceScore"`
	EmploymentScore float64 `json:"employmentScore"`
	RecencyScore    float64 `json:"recencyScore"`
	EducationScore  float64 `json:"educationScore"`

	TitleMatched bool `json:"titleMatched"`
	SkillMatched bool `json:"skillMatched"`

	// Score is the weighted composite, rounded to 2 decimals.
	Score float64 `json:"score"`
}

// signals carries the gating flags from the title and skill scorers to the
// experience and recency scorers.
type signals struct {
	titleMatched bool
	skillMatched bool
}

// Rank computes the weighted rank of profile for job. matchScore is the
// cosine similarity percentage of their embeddings and is weighted as-is.
func Rank(profile *models.Profile, job *models.Job, matchScore float64) Breakdown {
	var sig signals
	b := Breakdown{MatchScore: matchScore}

	b.TitleScore, sig.titleMatched = TitleScore(profile.Headline, job.Title)
	b.SkillScore, sig.skillMatched = SkillScore(profile.Skills, job.RequiredSkills)
	b.ExperienceScore = experienceScore(job.ExperienceLevel, profile.TotalYearsOfExperience, sig)
	b.EmploymentScore = EmploymentTypeScore(profile.EmploymentType, job.EmploymentType)
	b.RecencyScore = recencyScore(job.Description, profile.Experience, sig)
	b.EducationScore = EducationScore(profile.Education, job.FieldsOfStudy)

	b.TitleMatched = sig.titleMatched
	b.SkillMatched = sig.skillMatched

	w := job.RankingConfig
	weighted := []struct{ score, weight float64 }{
		{b.MatchScore, w.MatchScore},
		{b.TitleScore, w.TitleMatch},
		{b.SkillScore, w.Skills},
		{b.ExperienceScore, w.ExperienceYears},
		{b.EmploymentScore, w.EmploymentType},
		{b.RecencyScore, w.Recency},
		{b.EducationScore, w.FieldOfStudy},
	}

	var sum, total float64
	for _, s := range weighted {
		sum += s.score * s.weight
		total += s.weight
	}
	if total > 0 {
		b.Score = round(sum/total, 2)
	}
	return b
}

func tokenize(s string) []string {
	fields := strings.Fields(nonAlphanumeric.ReplaceAllString(strings.ToLower(s), " "))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TitleScore counts headline tokens that contain or are contained in some
// title token. Fewer than two matches score 0; otherwise the ratio to the
// shorter token list, rounded to 4 decimals. The flag reports a match.
func TitleScore(headline, title string) (float64, bool) {
	headTokens := tokenize(headline)
	titleTokens := tokenize(title)
	if len(headTokens) == 0 || len(titleTokens) == 0 {
		return 0, false
	}

	matches := 0
	for _, h := range headTokens {
		for _, t := range titleTokens {
			if strings.Contains(t, h) || strings.Contains(h, t) {
				matches++
				break
			}
		}
	}

	if matches <= 1 {
		return 0, false
	}
	shorter := len(headTokens)
	if len(titleTokens) < shorter {
		shorter = len(titleTokens)
	}
	return round(float64(matches)/float64(shorter), 4), true
}

// SkillScore is the share of required skills matched by some profile skill
// (case-insensitive substring either way), rounded to 4 decimals. The flag
// is set at a ratio of 0.4 or more.
func SkillScore(profileSkills, required []string) (float64, bool) {
	if len(profileSkills) == 0 || len(required) == 0 {
		return 0, false
	}

	have := make([]string, 0, len(profileSkills))
	for _, s := range profileSkills {
		have = append(have, strings.ToLower(strings.TrimSpace(s)))
	}

	matched := 0
	for _, r := range required {
		want := strings.ToLower(strings.TrimSpace(r))
		for _, h := range have {
			if strings.Contains(h, want) || strings.Contains(want, h) {
				matched++
				break
			}
		}
	}

	ratio := round(float64(matched)/float64(len(required)), 4)
	return ratio, ratio >= skillMatchThreshold
}

// experienceScore credits years only when both title and skills matched, so
// experience in an unrelated field does not inflate the rank.
func experienceScore(level models.ExperienceLevel, years float64, sig signals) float64 {
	if years <= 0 || !sig.titleMatched || !sig.skillMatched {
		return 0
	}
	required, ok := requiredYears[level]
	if !ok {
		return 0
	}
	if years >= required {
		return 1
	}
	return years / required
}

// EmploymentTypeScore is 1 when the candidate's preferred employment type is
// set and equals the job's, 0 otherwise.
func EmploymentTypeScore(profileType, jobType models.EmploymentType) float64 {
	if profileType != "" && profileType == jobType {
		return 1
	}
	return 0
}

// recencyScore is 1 when the candidate's current role is reflected in the job
// description and the skills matched.
func recencyScore(description string, experience []models.Experience, sig signals) float64 {
	if !sig.skillMatched {
		return 0
	}

	var current *models.Experience
	for i := range experience {
		if experience[i].IsCurrent {
			current = &experience[i]
			break
		}
	}
	if current == nil {
		return 0
	}

	roleTokens := tokenize(current.Role)
	if len(roleTokens) == 0 {
		return 0
	}

	desc := strings.ToLower(description)
	found := 0
	for _, t := range roleTokens {
		if strings.Contains(desc, t) {
			found++
		}
	}

	if float64(found)/float64(len(roleTokens)) > recencyThreshold {
		return 1
	}
	return 0
}

// EducationScore is 1 when any field of study equals a job field, ignoring case.
func EducationScore(education []models.Education, fields []string) float64 {
	for _, e := range education {
		if e.FieldOfStudy == "" {
			continue
		}
		for _, f := range fields {
			if strings.EqualFold(e.FieldOfStudy, f) {
				return 1
			}
		}
	}
	return 0
}

// Ranked pairs an application with its scores for ordering.
type Ranked struct {
	ApplicationID string
	MatchScore    float64
	RankingScore  float64
}

// SortByRank orders by RankingScore descending, breaking ties on MatchScore.
func SortByRank(items []Ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RankingScore != items[j].RankingScore {
			return items[i].RankingScore > items[j].RankingScore
		}
		return items[i].MatchScore > items[j].MatchScore
	})
}
