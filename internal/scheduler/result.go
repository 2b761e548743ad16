package scheduler

import (
	"sort"
	"time"

	"github.com/leadscope/enrich/internal/enrich"
)

// Job statuses on a returned EnrichmentResult.
const (
	JobCompleted = "completed"
	JobPartial   = "partial"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Wave statuses recorded per executed wave.
const (
	WaveCompleted = "completed"
	WavePartial   = "partial"
	WaveFailed    = "failed"
)

// WaveResult aggregates one executed wave.
type WaveResult struct {
	Number   int               `json:"number"`
	Status   string            `json:"status"`
	Outcomes map[string]string `json:"outcomes"`
}

// EnrichmentResult is the terminal record of one job.
type EnrichmentResult struct {
	JobID            string                    `json:"job_id"`
	Domain           string                    `json:"domain"`
	Status           string                    `json:"status"`
	Results          map[string]*enrich.Result `json:"results"`
	Waves            []WaveResult              `json:"waves"`
	CompletedModules []string                  `json:"completed_modules"`
	FailedModules    []string                  `json:"failed_modules"`
	SkippedModules   []string                  `json:"skipped_modules"`
	Errors           []string                  `json:"errors,omitempty"`
	StartedAt        time.Time                 `json:"started_at"`
	CompletedAt      time.Time                 `json:"completed_at"`
	DurationMS       int64                     `json:"duration_ms"`
	Aborted          bool                      `json:"aborted,omitempty"`
}

// SuccessRate is completed / (completed + failed + skipped).
func (r *EnrichmentResult) SuccessRate() float64 {
	total := len(r.CompletedModules) + len(r.FailedModules) + len(r.SkippedModules)
	if total == 0 {
		return 0
	}
	return float64(len(r.CompletedModules)) / float64(total)
}

// finalize derives the terminal status and per-bucket module lists.
func (r *EnrichmentResult) finalize(cancelled bool) {
	for _, wave := range r.Waves {
		for id, outcome := range wave.Outcomes {
			switch outcome {
			case string(enrich.StatusSuccess):
				r.CompletedModules = append(r.CompletedModules, id)
			case string(enrich.StatusSkipped):
				r.SkippedModules = append(r.SkippedModules, id)
			default:
				r.FailedModules = append(r.FailedModules, id)
			}
		}
	}
	for _, list := range [][]string{r.CompletedModules, r.FailedModules, r.SkippedModules} {
		sort.Slice(list, func(i, j int) bool {
			wi, wj := enrich.WaveOf(list[i]), enrich.WaveOf(list[j])
			if wi != wj {
				return wi < wj
			}
			return list[i] < list[j]
		})
	}
	switch {
	case cancelled:
		r.Status = JobCancelled
	// A critical-module abort fails the job even when earlier waves landed.
	case r.Aborted, len(r.CompletedModules) == 0:
		r.Status = JobFailed
	case len(r.FailedModules) == 0 && len(r.SkippedModules) == 0:
		r.Status = JobCompleted
	default:
		r.Status = JobPartial
	}
}
