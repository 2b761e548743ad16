package citation

import (
	"fmt"
)

// ValidationResult summarizes a batch freshness check over citations.
type ValidationResult struct {
	IsValid      bool                    `json:"is_valid"`
	Total        int                     `json:"total"`
	CountsByStatus map[FreshnessStatus]int `json:"counts_by_status"`
	Messages     []string                `json:"messages"`
}

// Validate classifies every citation and reports whether the set is free of
// expired entries. Messages are indexed for human consumption.
func (cl *Classifier) Validate(citations []*SourceCitation) ValidationResult {
	result := ValidationResult{
		IsValid:        true,
		Total:          len(citations),
		CountsByStatus: make(map[FreshnessStatus]int),
	}
	for i, c := range citations {
		status := cl.Classify(c)
		result.CountsByStatus[status]++
		switch status {
		case Expired:
			result.IsValid = false
			result.Messages = append(result.Messages,
				fmt.Sprintf("citation %d (%s): expired, retrieved %.1f days ago", i, c.Origin().SourceType, c.AgeDays()))
		case Stale:
			msg := fmt.Sprintf("citation %d (%s): stale, retrieved %.1f days ago", i, c.Origin().SourceType, c.AgeDays())
			if cl.RefreshDue(c) {
				msg += "; refresh recommended"
			}
			result.Messages = append(result.Messages, msg)
		case Unknown:
			result.Messages = append(result.Messages,
				fmt.Sprintf("citation %d: no freshness policy for source type", i))
		}
	}
	return result
}

// Validate runs against the default classifier.
func Validate(citations []*SourceCitation) ValidationResult {
	return defaultClassifier.Validate(citations)
}
