// internal/workers/interview/interview-prep/prompt.go
package interviewprep

import (
	"fmt"
	"strings"

	"match-pipeline/internal/models"
)

const systemPrompt = `You are an experienced career coach preparing a candidate for one specific interview.
Ground every answer hint in the candidate's own experience and be honest about gaps.
Respond with a single JSON object and nothing else.`

func buildPrompt(profile *models.Profile, job *models.Job) string {
	var b strings.Builder

	b.WriteString("Build an interview preparation dashboard.\n\n")
	b.WriteString("Target job:\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Description: %s\n", job.Description)
	fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(job.RequiredSkills, ", "))
	if len(job.Responsibilities) > 0 {
		fmt.Fprintf(&b, "Responsibilities: %s\n", strings.Join(job.Responsibilities, "; "))
	}
	if job.Qualifications != "" {
		fmt.Fprintf(&b, "Qualifications: %s\n", job.Qualifications)
	}
	fmt.Fprintf(&b, "Experience level: %s\n\n", job.ExperienceLevel)

	b.WriteString("Candidate:\n")
	fmt.Fprintf(&b, "Headline: %s\n", profile.Headline)
	if profile.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", profile.Summary)
	}
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
	fmt.Fprintf(&b, "Experience: %s\n", profile.ExperienceSummary())
	fmt.Fprintf(&b, "Total years: %v\n\n", profile.TotalYearsOfExperience)

	b.WriteString("Output fields:\n")
	b.WriteString("- coaching_summary: how this candidate should position themselves\n")
	b.WriteString("- professional_vibe: the tone the interviewers will expect\n")
	fmt.Fprintf(&b, "- question_bank: exactly %d questions, category one of %s, each with interviewer_intent, a personal_anchor_hint from the candidate's history and ideal_talking_points\n",
		QuestionBankSize, strings.Join(QuestionCategories, ", "))
	b.WriteString("- gap_strategies: missing_qualification and pivot_strategy for each real gap\n")
	b.WriteString("- smart_reverse_questions: questions the candidate can ask the interviewer\n")
	return b.String()
}
