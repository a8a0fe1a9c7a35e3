// internal/workers/application/match-rank/prompt.go
package matchrank

import (
	"fmt"
	"strings"

	"match-pipeline/internal/models"
)

const notesSystemPrompt = `You write recruiter notes for an applicant tracking system.
Compare one candidate with one job and report short factual observations.
Never decide whether to hire and never overstate. Stay neutral.`

func buildNotesPrompt(job *models.Job, profile *models.Profile) string {
	var b strings.Builder
	b.WriteString("Write recruiter notes for this application.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return a JSON array of 3 to 5 strings\n")
	b.WriteString("- At most 15 words per note\n")
	b.WriteString("- Cover strengths, gaps and fit; no recommendations, no emojis\n\n")

	b.WriteString("Job:\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Experience level: %s\n", job.ExperienceLevel)
	fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(job.RequiredSkills, ", "))
	if len(job.Responsibilities) > 0 {
		fmt.Fprintf(&b, "Responsibilities: %s\n", strings.Join(job.Responsibilities, "; "))
	}
	fmt.Fprintf(&b, "Employment type: %s\n\n", job.EmploymentType)

	b.WriteString("Candidate:\n")
	fmt.Fprintf(&b, "Headline: %s\n", profile.Headline)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
	fmt.Fprintf(&b, "Experience: %s\n", profile.ExperienceSummary())
	fmt.Fprintf(&b, "Total years: %v\n", profile.TotalYearsOfExperience)
	fmt.Fprintf(&b, "Employment type: %s\n", profile.EmploymentType)
	fmt.Fprintf(&b, "Work preference: %s\n", profile.JobPreference)
	return b.String()
}
