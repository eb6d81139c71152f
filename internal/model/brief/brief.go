package brief

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the coarse completion state of a brief.
type Status string

const (
	StatusExploring Status = "exploring"
	StatusDefining  Status = "defining"
	StatusScoped    Status = "scoped"
	StatusShared    Status = "shared"
)

// ErrInvalidShareID is returned for tokens that are not exactly 12 lowercase hex characters.
var ErrInvalidShareID = errors.New("invalid brief id")

var shareIDPattern = regexp.MustCompile(`^[a-f0-9]{12}$`)

// Fields is the structured content produced by one extraction pass.
type Fields struct {
	Summary         *string  `json:"summary"`
	Goals           []string `json:"goals"`
	Features        []string `json:"features"`
	TargetAudience  *string  `json:"target_audience"`
	TechPreferences *string  `json:"tech_preferences"`
	Timeline        *string  `json:"timeline"`
	BudgetSignals   *string  `json:"budget_signals"`
	Industry        *string  `json:"industry"`
}

// Brief is the persisted project brief, at most one per session.
type Brief struct {
	SessionID string
	Fields
	Status    Status
	ShareID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveStatus recomputes the status from a single pass. It never yields StatusShared.
func DeriveStatus(f Fields) Status {
	switch {
	case len(f.Features) >= 3 && f.Summary != nil:
		return StatusScoped
	case len(f.Features) >= 1 || len(f.Goals) >= 1:
		return StatusDefining
	default:
		return StatusExploring
	}
}

// Normalize trims every value, turns blank scalars into nil and drops blank list items.
func (f Fields) Normalize() Fields {
	return Fields{
		Summary:         cleanScalar(f.Summary),
		Goals:           cleanList(f.Goals),
		Features:        cleanList(f.Features),
		TargetAudience:  cleanScalar(f.TargetAudience),
		TechPreferences: cleanScalar(f.TechPreferences),
		Timeline:        cleanScalar(f.Timeline),
		BudgetSignals:   cleanScalar(f.BudgetSignals),
		Industry:        cleanScalar(f.Industry),
	}
}

// MergeOnto keeps values from prev wherever f leaves a field unknown.
func (f Fields) MergeOnto(prev Fields) Fields {
	merged := f
	if merged.Summary == nil {
		merged.Summary = prev.Summary
	}
	if len(merged.Goals) == 0 {
		merged.Goals = prev.Goals
	}
	if len(merged.Features) == 0 {
		merged.Features = prev.Features
	}
	if merged.TargetAudience == nil {
		merged.TargetAudience = prev.TargetAudience
	}
	if merged.TechPreferences == nil {
		merged.TechPreferences = prev.TechPreferences
	}
	if merged.Timeline == nil {
		merged.Timeline = prev.Timeline
	}
	if merged.BudgetSignals == nil {
		merged.BudgetSignals = prev.BudgetSignals
	}
	if merged.Industry == nil {
		merged.Industry = prev.Industry
	}
	return merged
}

// ValidShareID reports whether token has the public share-id shape.
func ValidShareID(token string) bool {
	return shareIDPattern.MatchString(token)
}

// NewShareID returns 12 random lowercase hex characters.
func NewShareID() string {
	// The first 12 hex digits of a v4 UUID are all random bits.
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func cleanScalar(val *string) *string {
	if val == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*val)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return nil
	}
	return &trimmed
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
