// Package scheduler runs enrichment jobs: it plans the four waves, dispatches
// modules in parallel within each wave, joins at wave boundaries, and folds
// the outcomes into a terminal EnrichmentResult.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
)

// skipReasonBreaker marks modules skipped by the scheduler-local guard.
const skipReasonBreaker = "circuit breaker open"

// retryBackoffBase seeds the jittered backoff between module attempts.
const retryBackoffBase = 250 * time.Millisecond

// Scheduler executes enrichment jobs against a module registry.
type Scheduler struct {
	registry *enrich.Registry
	progress *progress.Manager
	inst     *metrics.Instruments
	log      zerolog.Logger

	// guards are scheduler-local per-module breakers, distinct from the
	// per-adapter breakers inside the adapter runtime. They fence off a
	// module that keeps failing or panicking across jobs.
	guardMu sync.Mutex
	guards  map[string]*gobreaker.CircuitBreaker
}

// New builds a scheduler.
func New(registry *enrich.Registry, progressMgr *progress.Manager, inst *metrics.Instruments, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		progress: progressMgr,
		inst:     inst,
		log:      log.With().Str("component", "scheduler").Logger(),
		guards:   map[string]*gobreaker.CircuitBreaker{},
	}
}

// Progress exposes the progress manager for API surfaces.
func (s *Scheduler) Progress() *progress.Manager { return s.progress }

// Enrich runs one job to completion and returns its terminal result. The
// returned error covers spec problems only; execution failures are folded
// into the result itself.
func (s *Scheduler) Enrich(ctx context.Context, spec *JobSpec) (*EnrichmentResult, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	plan := Plan(spec)
	if len(plan) == 0 {
		return nil, fmt.Errorf("job spec: no modules selected")
	}

	jobID := uuid.NewString()
	tracker := s.progress.Create(jobID, spec.Domain, PlanModules(plan), EstimateSeconds(plan))
	log := s.log.With().Str("job_id", jobID).Str("domain", spec.Domain).Logger()

	jobCtx, cancel := context.WithTimeout(ctx, spec.JobTimeout())
	defer cancel()
	if spec.BypassCache {
		jobCtx = adapter.WithBypassCache(jobCtx)
	}

	result := &EnrichmentResult{
		JobID:     jobID,
		Domain:    spec.Domain,
		Results:   map[string]*enrich.Result{},
		StartedAt: time.Now().UTC(),
	}
	s.inst.ActiveJobs.Inc()
	defer s.inst.ActiveJobs.Dec()
	tracker.JobStart()
	log.Info().Int("waves", len(plan)).Msg("job started")

	shared := enrich.Context{}
	for _, wave := range plan {
		if jobCtx.Err() != nil {
			break
		}
		waveResult, moduleResults := s.runWave(jobCtx, spec, wave, shared, tracker, log)
		result.Waves = append(result.Waves, waveResult)
		for id, moduleResult := range moduleResults {
			result.Results[id] = moduleResult
		}

		aborted := false
		for id, outcome := range waveResult.Outcomes {
			moduleResult := result.Results[id]
			if outcome == string(enrich.StatusSuccess) {
				continue
			}
			if moduleResult != nil && moduleResult.ErrorMessage != "" {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, moduleResult.ErrorMessage))
			}
			if outcome != string(enrich.StatusSkipped) && spec.critical(id) {
				msg := fmt.Sprintf("critical module %s failed", id)
				tracker.CriticalError(msg)
				result.Errors = append(result.Errors, msg)
				aborted = true
			}
		}
		if aborted {
			result.Aborted = true
			log.Warn().Int("wave", wave.Number).Msg("aborting after critical module failure")
			break
		}
	}

	cancelled := false
	if err := jobCtx.Err(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancelled = true
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("job timeout after %s", spec.JobTimeout()))
		}
	}

	result.CompletedAt = time.Now().UTC()
	result.DurationMS = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	result.finalize(cancelled)
	if jobCtx.Err() != nil && !cancelled {
		result.Status = JobFailed
	}

	tracker.JobComplete(result.Status)
	s.inst.ObserveJob(result.Status, time.Duration(result.DurationMS)*time.Millisecond)
	log.Info().Str("status", result.Status).Float64("success_rate", result.SuccessRate()).
		Int64("duration_ms", result.DurationMS).Msg("job finished")
	return result, nil
}

// runWave dispatches one wave's modules in parallel and joins them. A module
// whose declared prerequisite shares the wave runs in a later stage, after
// the prerequisite joined and merged into the shared context. The full
// per-module result map is returned alongside the aggregate.
func (s *Scheduler) runWave(ctx context.Context, spec *JobSpec, wave WavePlan, shared enrich.Context, tracker *progress.Tracker, log zerolog.Logger) (WaveResult, map[string]*enrich.Result) {
	tracker.WaveStart(wave.Number, wave.Modules)
	outcomes := map[string]string{}
	results := map[string]*enrich.Result{}

	var dispatch []string
	for _, id := range wave.Modules {
		if s.guard(id).State() == gobreaker.StateOpen {
			skipped := enrich.NewSkipped(id, spec.Domain, skipReasonBreaker)
			results[id] = skipped
			tracker.ModuleComplete(id, progress.StateSkipped, skipReasonBreaker, 0)
			continue
		}
		dispatch = append(dispatch, id)
	}

	var mu sync.Mutex
	for _, stage := range stageModules(dispatch) {
		var wg sync.WaitGroup
		for _, id := range stage {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				moduleResult := s.runModule(ctx, spec, id, shared, tracker)
				mu.Lock()
				results[id] = moduleResult
				mu.Unlock()
			}(id)
		}
		wg.Wait()
		// Successes become visible to later stages and later waves.
		for _, id := range stage {
			if moduleResult := results[id]; moduleResult != nil && moduleResult.Status == enrich.StatusSuccess {
				shared[id] = moduleResult
			}
		}
	}

	succeeded, failed := 0, 0
	for id, moduleResult := range results {
		outcomes[id] = string(moduleResult.Status)
		switch moduleResult.Status {
		case enrich.StatusSuccess:
			succeeded++
		case enrich.StatusSkipped:
		default:
			failed++
		}
	}

	status := WavePartial
	switch {
	case failed == 0 && succeeded == len(results):
		status = WaveCompleted
	case succeeded == 0 && failed == len(results) && failed > 0:
		status = WaveFailed
	}
	tracker.WaveComplete(wave.Number, status)
	log.Debug().Int("wave", wave.Number).Str("status", status).
		Int("succeeded", succeeded).Int("failed", failed).Msg("wave joined")

	return WaveResult{Number: wave.Number, Status: status, Outcomes: outcomes}, results
}

// stageModules partitions a wave's dispatch list by intra-wave dependency
// depth: a module lands one stage after the deepest prerequisite it shares
// the wave with. Most waves collapse to a single stage; the committee model
// trails the executive module and the brief trails its wave-four siblings.
func stageModules(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	inWave := make(map[string]bool, len(ids))
	for _, id := range ids {
		inWave[id] = true
	}

	depth := map[string]int{}
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		depth[id] = 0 // cycle guard; the wave tables are acyclic
		d := 0
		for _, dep := range enrich.Dependencies[id] {
			if !inWave[dep] || dep == id {
				continue
			}
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	deepest := 0
	for _, id := range ids {
		if d := depthOf(id); d > deepest {
			deepest = d
		}
	}
	stages := make([][]string, deepest+1)
	for _, id := range ids {
		stages[depth[id]] = append(stages[depth[id]], id)
	}
	return stages
}

// runModule executes one module with retries under the per-module guard.
func (s *Scheduler) runModule(ctx context.Context, spec *JobSpec, id string, shared enrich.Context, tracker *progress.Tracker) *enrich.Result {
	tracker.ModuleStart(id)
	start := time.Now()

	module, ok := s.registry.Get(id)
	if !ok {
		failed := enrich.NewFailed(id, spec.Domain, enrich.ErrTypeModuleError, fmt.Errorf("module %s not registered", id))
		s.observeModule(tracker, id, failed, start)
		return failed
	}

	attempts := spec.retries() + 1
	var final *enrich.Result
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := s.guard(id).Execute(func() (any, error) {
			return s.attempt(ctx, spec, module, shared)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			final = enrich.NewSkipped(id, spec.Domain, skipReasonBreaker)
			break
		}
		if err == nil {
			final = value.(*enrich.Result)
			break
		}

		errType := enrich.ErrTypeModuleError
		var depErr *enrich.DependencyNotMetError
		var citErr *enrich.CitationError
		switch {
		case errors.As(err, &depErr):
			final = enrich.NewSkipped(id, spec.Domain, depErr.Error())
		case errors.As(err, &citErr):
			errType = citErr.Kind
		case errors.Is(err, context.DeadlineExceeded):
			errType = enrich.ErrTypeTimeout
		case errors.Is(err, context.Canceled):
			errType = enrich.ErrTypeCancelled
		}
		if final != nil {
			break
		}
		final = enrich.NewFailed(id, spec.Domain, errType, err)

		// Retry only transient failures while the job clock allows it.
		if attempt < attempts && ctx.Err() == nil && errType != enrich.ErrTypeCancelled {
			backoff := retryBackoffBase << (attempt - 1)
			jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-time.After(backoff + jitter):
				final = nil
				continue
			case <-ctx.Done():
			}
		}
		break
	}

	final.DurationMS = time.Since(start).Milliseconds()
	s.observeModule(tracker, id, final, start)
	return final
}

// attempt runs a single module execution with panic containment and the
// per-module timeout.
func (s *Scheduler) attempt(ctx context.Context, spec *JobSpec, module enrich.Module, shared enrich.Context) (result *enrich.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("module %s panicked: %v", module.ID(), r)
		}
	}()

	timeout := module.Timeout()
	if spec.ModuleTimeoutSeconds > 0 {
		timeout = spec.ModuleTimeout()
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err = module.Execute(attemptCtx, spec.Domain, shared)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("module %s: %w", module.ID(), context.DeadlineExceeded)
		}
		return nil, err
	}
	if verr := module.ValidateOutput(result); verr != nil {
		return nil, verr
	}
	return result, nil
}

// guard returns the scheduler-local breaker for a module.
func (s *Scheduler) guard(id string) *gobreaker.CircuitBreaker {
	s.guardMu.Lock()
	defer s.guardMu.Unlock()
	if cb, ok := s.guards[id]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A skipped module is not a module defect.
			var depErr *enrich.DependencyNotMetError
			return err == nil || errors.As(err, &depErr)
		},
	})
	s.guards[id] = cb
	return cb
}

func (s *Scheduler) observeModule(tracker *progress.Tracker, id string, result *enrich.Result, start time.Time) {
	duration := time.Since(start)
	s.inst.ObserveModule(id, string(result.Status), duration)
	tracker.ModuleComplete(id, string(result.Status), result.ErrorMessage, duration.Milliseconds())
}
