package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/course"
)

// AnalyticsInstruction is the output contract the response parser depends on.
const AnalyticsInstruction = `**ANALYTICS REQUIREMENT (INTERNAL):**
At the very end of every response, you MUST include a JSON object hidden inside a specific tag.
Format:
[[ANALYTICS: {"concept": "...", "level": "intro/intermediate/advanced", "useCase": "%s", "outcome": "resolved/partially resolved/unresolved"}]]`

// BuildSystemInstruction renders the fixed instruction every chat session is created with.
func BuildSystemInstruction(p course.Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are “%s”, an AI teaching assistant for the course %s", p.Title, courseName(p))
	if p.Instructor != "" {
		fmt.Fprintf(&b, " taught by %s", p.Instructor)
	}
	if p.Institution != "" {
		fmt.Fprintf(&b, " at %s", p.Institution)
	}
	b.WriteString(".\n\n")

	b.WriteString("**STRICT SCOPE AND KNOWLEDGE BASE:**\n")
	fmt.Fprintf(&b, "- Your knowledge is STRICTLY limited to the provided COURSE_CONTENT text below and standard %s fundamentals that align with it.\n", courseName(p))
	fmt.Fprintf(&b, "- **MANDATORY REFUSAL:** If a user asks ANY question that is not related to %s or the topics covered in the course content, you must POLITELY REFUSE.\n", courseName(p))
	if p.Refusal != "" {
		fmt.Fprintf(&b, "- Refusal phrase example: %q\n", p.Refusal)
	}

	b.WriteString("\n**COURSE CONTENT:**\n")
	b.WriteString(strings.TrimSpace(p.Content))
	b.WriteString("\n")

	if len(p.Pedagogy) > 0 {
		b.WriteString("\n**PEDAGOGICAL BEHAVIOUR:**\n")
		for i, block := range p.Pedagogy {
			fmt.Fprintf(&b, "%d. **%s:**\n", i+1, block.Title)
			for _, rule := range block.Rules {
				fmt.Fprintf(&b, "   - %s\n", rule)
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(AnalyticsInstruction, useCases(p)))
	b.WriteString("\n")
	return b.String()
}

func courseName(p course.Profile) string {
	if p.Course != "" {
		return p.Course
	}
	return p.Title
}

func useCases(p course.Profile) string {
	if len(p.UseCases) == 0 {
		return "..."
	}
	return strings.Join(p.UseCases, "/")
}
