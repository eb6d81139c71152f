// Package completeness scores how much of a brief has been filled in.
package completeness

import (
	"strings"

	"github.com/kolson/planner/backend/internal/model/brief"
)

// Result is the weighted score (0-100) and the prompt for the first missing field.
type Result struct {
	Score    int    `json:"score"`
	NextHint string `json:"next_hint,omitempty"`
}

type field struct {
	weight int
	prompt string
	filled func(f brief.Fields) bool
}

// Order matters: the first unfilled field produces the hint.
var fields = []field{
	{15, "Describe your core idea", func(f brief.Fields) bool { return scalar(f.Summary) }},
	{15, "What are your main goals?", func(f brief.Fields) bool { return len(f.Goals) > 0 }},
	{20, "What features do you need?", func(f brief.Fields) bool { return len(f.Features) > 0 }},
	{10, "Who is this for?", func(f brief.Fields) bool { return scalar(f.TargetAudience) }},
	{10, "What's your timeline?", func(f brief.Fields) bool { return scalar(f.Timeline) }},
	{10, "What's your budget range?", func(f brief.Fields) bool { return scalar(f.BudgetSignals) }},
	{10, "Any tech preferences?", func(f brief.Fields) bool { return scalar(f.TechPreferences) }},
	{10, "What industry is this in?", func(f brief.Fields) bool { return scalar(f.Industry) }},
}

// Analyze scores the given fields.
func Analyze(f brief.Fields) Result {
	var result Result
	for _, fd := range fields {
		if fd.filled(f) {
			result.Score += fd.weight
		} else if result.NextHint == "" {
			result.NextHint = fd.prompt
		}
	}
	return result
}

func scalar(val *string) bool {
	return val != nil && strings.TrimSpace(*val) != ""
}
