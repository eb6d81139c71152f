package ai

import (
	"fmt"
	"strings"

	"github.com/kolson/planner/backend/internal/model/persona"
)

// BuildSystemPrompt renders the fixed persona prompt used for every reply.
func BuildSystemPrompt(p *persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. You represent %s, %s.\n", p.Name, p.Owner, p.Description)
	fmt.Fprintf(&b, "Your job is to help visitors shape a project idea into a plan they can share with %s.\n", p.Owner)

	writeSection(&b, "About "+p.Owner, p.Expertise)
	if len(p.Industries) > 0 {
		fmt.Fprintf(&b, "\nFocus industries: %s.\n", strings.Join(p.Industries, ", "))
	}
	writeSection(&b, "Style", p.StyleRules)
	writeSection(&b, "Conversation", p.Conversion)
	writeSection(&b, "Rules", p.Guardrails)

	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
}
