// internal/workers/employer/interview-kit/prompt.go
package interviewkit

import (
	"fmt"
	"strings"

	"match-pipeline/internal/models"
)

const systemPrompt = `You are an HR strategist who designs structured interview kits from a job description.
Work out the job's sector first and adapt the questions to it.
Core_Competency covers the main job function, Operational_Knowledge covers safety, tools and compliance,
Situational_Judgment covers pressure and crisis scenarios.
Each score_rubric describes concrete answers at the seniority the job asks for.
Respond with a single JSON object and nothing else.`

func buildPrompt(job *models.Job) string {
	var b strings.Builder
	b.WriteString("Job:\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Description: %s\n", job.Description)
	fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(job.RequiredSkills, ", "))
	fmt.Fprintf(&b, "Experience level: %s\n\n", job.ExperienceLevel)

	fmt.Fprintf(&b, "Write exactly %d standard interview questions the employer asks every candidate.\n", KitSize)
	b.WriteString("Entry-level or manual roles lean on Behavioral_Traits and Operational_Knowledge.\n")
	b.WriteString("Leadership roles lean on Leadership_Potential and Situational_Judgment.\n")
	b.WriteString("Give 5 good_answer_signals and 3 red_flags per question, and an intent that tells the employer what the question reveals.\n")
	return b.String()
}
