package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leadscope/enrich/internal/enrich"
)

// Defaults for job execution bounds.
const (
	DefaultModuleTimeoutSeconds = 120
	DefaultJobTimeoutSeconds    = 600
	DefaultMaxRetries           = 2
)

// JobSpec describes one enrichment request.
type JobSpec struct {
	Domain               string   `json:"domain" validate:"required,hostname_rfc1123"`
	Modules              []string `json:"modules,omitempty" validate:"omitempty,dive,min=1"`
	ModuleTimeoutSeconds int      `json:"module_timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`
	JobTimeoutSeconds    int      `json:"job_timeout_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
	MaxRetries           *int     `json:"max_retries,omitempty" validate:"omitempty,min=0,max=5"`
	CriticalModules      []string `json:"critical_modules,omitempty"`
	BypassCache          bool     `json:"bypass_cache,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize applies defaults and validates the spec against the known module
// set. The domain is canonicalized first so URL forms validate as hostnames.
func (s *JobSpec) Normalize() error {
	s.Domain = enrich.NormalizeDomain(s.Domain)
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("job spec: %w", err)
	}
	if s.ModuleTimeoutSeconds <= 0 {
		s.ModuleTimeoutSeconds = DefaultModuleTimeoutSeconds
	}
	if s.JobTimeoutSeconds <= 0 {
		s.JobTimeoutSeconds = DefaultJobTimeoutSeconds
	}
	if s.MaxRetries == nil {
		retries := DefaultMaxRetries
		s.MaxRetries = &retries
	}
	if s.CriticalModules == nil {
		s.CriticalModules = []string{enrich.M01CompanyContext}
	}
	for _, id := range s.Modules {
		if enrich.WaveOf(id) == 0 {
			return fmt.Errorf("job spec: unknown module %q", id)
		}
	}
	for _, id := range s.CriticalModules {
		if enrich.WaveOf(id) == 0 {
			return fmt.Errorf("job spec: unknown critical module %q", id)
		}
	}
	return nil
}

// ModuleTimeout returns the per-module bound.
func (s *JobSpec) ModuleTimeout() time.Duration {
	return time.Duration(s.ModuleTimeoutSeconds) * time.Second
}

// JobTimeout returns the whole-job bound.
func (s *JobSpec) JobTimeout() time.Duration {
	return time.Duration(s.JobTimeoutSeconds) * time.Second
}

// retries returns the per-module retry count after Normalize.
func (s *JobSpec) retries() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *s.MaxRetries
}

// critical reports whether a module failure aborts the job.
func (s *JobSpec) critical(moduleID string) bool {
	for _, id := range s.CriticalModules {
		if id == moduleID {
			return true
		}
	}
	return false
}

// WavePlan is one planned wave.
type WavePlan struct {
	Number  int
	Modules []string
}

// Plan filters the static wave layout by the requested subset. Dependency
// satisfaction is resolved at run time against the accumulated context, not
// at plan time.
func Plan(spec *JobSpec) []WavePlan {
	requested := map[string]bool{}
	for _, id := range spec.Modules {
		requested[id] = true
	}
	var plan []WavePlan
	for i, wave := range enrich.Waves {
		var selected []string
		for _, id := range wave {
			if len(requested) == 0 || requested[id] {
				selected = append(selected, id)
			}
		}
		if len(selected) > 0 {
			plan = append(plan, WavePlan{Number: i + 1, Modules: selected})
		}
	}
	return plan
}

// EstimateSeconds is the upfront duration estimate: the sum over waves of
// the slowest module in each wave.
func EstimateSeconds(plan []WavePlan) float64 {
	total := 0.0
	for _, wave := range plan {
		slowest := 0.0
		for _, id := range wave.Modules {
			if avg := enrich.AverageSeconds[id]; avg > slowest {
				slowest = avg
			}
		}
		total += slowest
	}
	return total
}

// PlanModules flattens the plan's module ids in wave order.
func PlanModules(plan []WavePlan) []string {
	var ids []string
	for _, wave := range plan {
		ids = append(ids, wave.Modules...)
	}
	return ids
}
