// internal/workers/employer/candidate-questions/prompt.go
package candidatequestions

import (
	"fmt"
	"strings"

	"match-pipeline/internal/models"
)

const systemPrompt = `You audit candidates for hiring teams by comparing a job description with a resume.
Find requirements the candidate is missing or weak on, note where they exceed the bar,
and write interview questions that make the candidate show how they would close each gap.
Avoid generic questions. When a tool is missing but a related one is present, ask about the transition.
expectedLogic describes the reasoning a strong answer follows.
Respond with a single JSON object and nothing else.`

func buildPrompt(job *models.Job, profile *models.Profile, descriptionLimit int) string {
	description := job.Description
	if descriptionLimit > 0 && len(description) > descriptionLimit {
		description = description[:descriptionLimit] + "..."
	}

	var b strings.Builder
	b.WriteString("Job:\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Experience level: %s\n", job.ExperienceLevel)
	fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(job.RequiredSkills, ", "))
	if len(job.Responsibilities) > 0 {
		fmt.Fprintf(&b, "Responsibilities: %s\n", strings.Join(job.Responsibilities, " | "))
	}
	fmt.Fprintf(&b, "Description: %s\n\n", description)

	b.WriteString("Candidate:\n")
	fmt.Fprintf(&b, "Headline: %s\n", profile.Headline)
	if profile.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", profile.Summary)
	}
	fmt.Fprintf(&b, "Total experience: %v years\n", profile.TotalYearsOfExperience)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
	for _, e := range profile.Experience {
		fmt.Fprintf(&b, "- %s at %s: %s\n", e.Role, e.CompanyName, e.Description)
	}

	b.WriteString("\nReturn candidateSummary and questions, each with question, gapIdentified, intent and expectedLogic.\n")
	return b.String()
}
