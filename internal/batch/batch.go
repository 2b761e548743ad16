// Package batch fans enrichment out over many domains under a concurrency
// bound. One domain's failure never cancels the others.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/leadscope/enrich/internal/scheduler"
)

// DefaultMaxConcurrentDomains bounds simultaneous jobs.
const DefaultMaxConcurrentDomains = 5

// ProgressFunc is invoked after each domain finishes with the running
// completion count.
type ProgressFunc func(domain string, completed, total int)

// Orchestrator runs batches against a single scheduler.
type Orchestrator struct {
	scheduler     *scheduler.Scheduler
	maxConcurrent int64
	log           zerolog.Logger
}

// New builds an orchestrator. maxConcurrent <= 0 selects the default.
func New(sched *scheduler.Scheduler, maxConcurrent int, log zerolog.Logger) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDomains
	}
	return &Orchestrator{
		scheduler:     sched,
		maxConcurrent: int64(maxConcurrent),
		log:           log.With().Str("component", "batch").Logger(),
	}
}

// EnrichBatch enriches every domain with the spec template, returning one
// result per domain. The template's Domain field is ignored.
func (o *Orchestrator) EnrichBatch(ctx context.Context, domains []string, template scheduler.JobSpec, onProgress ProgressFunc) map[string]*scheduler.EnrichmentResult {
	sem := semaphore.NewWeighted(o.maxConcurrent)
	results := make(map[string]*scheduler.EnrichmentResult, len(domains))

	var mu sync.Mutex
	var wg sync.WaitGroup
	completed := 0
	total := len(domains)

	for _, domain := range domains {
		if err := sem.Acquire(ctx, 1); err != nil {
			o.log.Warn().Err(err).Str("domain", domain).Msg("batch cancelled before dispatch")
			break
		}
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			defer sem.Release(1)

			result := o.runOne(ctx, domain, template)

			mu.Lock()
			results[domain] = result
			completed++
			done := completed
			mu.Unlock()
			if onProgress != nil {
				onProgress(domain, done, total)
			}
		}(domain)
	}
	wg.Wait()
	return results
}

// runOne executes a single domain with panic containment so a defective
// domain cannot take the batch down.
func (o *Orchestrator) runOne(ctx context.Context, domain string, template scheduler.JobSpec) (result *scheduler.EnrichmentResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("domain", domain).Interface("panic", r).Msg("enrichment panicked")
			result = &scheduler.EnrichmentResult{
				Domain: domain,
				Status: scheduler.JobFailed,
				Errors: []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()

	spec := template
	spec.Domain = domain
	res, err := o.scheduler.Enrich(ctx, &spec)
	if err != nil {
		o.log.Error().Err(err).Str("domain", domain).Msg("enrichment rejected")
		return &scheduler.EnrichmentResult{
			Domain: domain,
			Status: scheduler.JobFailed,
			Errors: []string{err.Error()},
		}
	}
	return res
}
