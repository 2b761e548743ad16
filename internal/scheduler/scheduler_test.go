package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
)

// stubModule is a scriptable module for scheduler tests.
type stubModule struct {
	id    string
	delay time.Duration
	fail  error
	panic bool
	onRun func()
}

func (m *stubModule) ID() string                             { return m.id }
func (m *stubModule) Name() string                           { return m.id }
func (m *stubModule) Wave() int                              { return enrich.WaveOf(m.id) }
func (m *stubModule) DependsOn() []string                    { return enrich.Dependencies[m.id] }
func (m *stubModule) PrimarySourceType() citation.SourceType { return citation.SourceManual }
func (m *stubModule) Timeout() time.Duration                 { return enrich.DefaultModuleTimeout }
func (m *stubModule) ValidateOutput(*enrich.Result) error    { return nil }

func (m *stubModule) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if m.onRun != nil {
		m.onRun()
	}
	for _, dep := range enrich.Dependencies[m.id] {
		if _, err := deps.Require(m.id, dep); err != nil {
			return nil, err
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panic {
		panic("scripted panic")
	}
	if m.fail != nil {
		return nil, m.fail
	}
	cit := citation.Placeholder(citation.SourceManual, "https://"+domain+"/", "stub")
	return enrich.NewSuccess(m.id, domain, map[string]any{"module": m.id}, cit)
}

// stubRegistry registers a stub for every module, with optional overrides.
func stubRegistry(t *testing.T, overrides map[string]*stubModule) *enrich.Registry {
	t.Helper()
	registry := enrich.NewRegistry()
	for _, wave := range enrich.Waves {
		for _, id := range wave {
			stub, ok := overrides[id]
			if !ok {
				stub = &stubModule{id: id}
			}
			stub.id = id
			registry.MustRegister(id, func() enrich.Module { return stub })
		}
	}
	return registry
}

func newTestScheduler(t *testing.T, overrides map[string]*stubModule) *Scheduler {
	t.Helper()
	mgr := progress.NewManager(time.Hour, zerolog.Nop())
	return New(stubRegistry(t, overrides), mgr, metrics.New(), zerolog.Nop())
}

func retries(n int) *int { return &n }

func TestPlanFullAndSubset(t *testing.T) {
	full := Plan(&JobSpec{Domain: "example.com"})
	require.Len(t, full, 4)
	assert.Equal(t, enrich.Waves[0], full[0].Modules)
	assert.Len(t, PlanModules(full), 15)

	subset := Plan(&JobSpec{Domain: "example.com", Modules: []string{enrich.M02TechnologyStack}})
	require.Len(t, subset, 1)
	assert.Equal(t, 1, subset[0].Number)
	assert.Equal(t, []string{enrich.M02TechnologyStack}, subset[0].Modules)
}

func TestEstimateSeconds(t *testing.T) {
	full := Plan(&JobSpec{Domain: "example.com"})
	// Sum of per-wave maxima: 10 + 9 + 15 + 6.
	assert.InDelta(t, 40, EstimateSeconds(full), 1e-9)
}

func TestJobSpecNormalize(t *testing.T) {
	spec := &JobSpec{Domain: "https://WWW.Example.com/shop?q=1"}
	require.NoError(t, spec.Normalize())
	assert.Equal(t, "example.com", spec.Domain)
	assert.Equal(t, DefaultModuleTimeoutSeconds, spec.ModuleTimeoutSeconds)
	assert.Equal(t, DefaultJobTimeoutSeconds, spec.JobTimeoutSeconds)
	assert.Equal(t, DefaultMaxRetries, *spec.MaxRetries)
	assert.Equal(t, []string{enrich.M01CompanyContext}, spec.CriticalModules)

	explicit := &JobSpec{Domain: "example.com", MaxRetries: retries(0)}
	require.NoError(t, explicit.Normalize())
	assert.Equal(t, 0, *explicit.MaxRetries)

	assert.Error(t, (&JobSpec{Domain: ""}).Normalize())
	assert.Error(t, (&JobSpec{Domain: "example.com", Modules: []string{"m99_bogus"}}).Normalize())
	assert.Error(t, (&JobSpec{Domain: "example.com", CriticalModules: []string{"m16_nope"}}).Normalize())
}

func TestEnrichAllModulesSucceed(t *testing.T) {
	sched := newTestScheduler(t, nil)
	result, err := sched.Enrich(context.Background(), &JobSpec{Domain: "shop.example.com"})
	require.NoError(t, err)

	assert.Equal(t, JobCompleted, result.Status)
	assert.Len(t, result.CompletedModules, 15)
	assert.Empty(t, result.FailedModules)
	assert.Empty(t, result.SkippedModules)
	assert.InDelta(t, 1.0, result.SuccessRate(), 1e-9)
	require.Len(t, result.Waves, 4)
	for _, wave := range result.Waves {
		assert.Equal(t, WaveCompleted, wave.Status)
	}
	// Every result carries a citation.
	for id, moduleResult := range result.Results {
		assert.NotNil(t, moduleResult.PrimaryCitation, id)
	}
}

func TestStageModules(t *testing.T) {
	// Waves one and two have no intra-wave edges.
	assert.Equal(t, [][]string{enrich.Waves[0]}, stageModules(enrich.Waves[0]))
	assert.Equal(t, [][]string{enrich.Waves[1]}, stageModules(enrich.Waves[1]))

	// The committee model trails the executive module inside wave three.
	wave3 := stageModules(enrich.Waves[2])
	require.Len(t, wave3, 2)
	assert.ElementsMatch(t, []string{
		enrich.M08InvestorIntelligence, enrich.M09ExecutiveIntelligence, enrich.M11DisplacementAnalysis,
	}, wave3[0])
	assert.Equal(t, []string{enrich.M10BuyingCommittee}, wave3[1])

	// The brief trails its wave-four siblings.
	wave4 := stageModules(enrich.Waves[3])
	require.Len(t, wave4, 2)
	assert.ElementsMatch(t, []string{
		enrich.M12CaseStudyMatching, enrich.M13IcpPriorityMapping, enrich.M14SignalScoring,
	}, wave4[0])
	assert.Equal(t, []string{enrich.M15StrategicBrief}, wave4[1])

	assert.Empty(t, stageModules(nil))
}

func TestSameWaveDependencyFailureSkips(t *testing.T) {
	// M09 fails, so the committee model in the same wave and the brief in the
	// final wave both skip; the other modules land.
	overrides := map[string]*stubModule{
		enrich.M09ExecutiveIntelligence: {fail: errors.New("people index unavailable")},
	}
	sched := newTestScheduler(t, overrides)
	result, err := sched.Enrich(context.Background(), &JobSpec{Domain: "example.com", MaxRetries: retries(0)})
	require.NoError(t, err)

	assert.Equal(t, JobPartial, result.Status)
	assert.Contains(t, result.FailedModules, enrich.M09ExecutiveIntelligence)
	assert.Contains(t, result.SkippedModules, enrich.M10BuyingCommittee)
	assert.Contains(t, result.SkippedModules, enrich.M15StrategicBrief)
	assert.Contains(t, result.CompletedModules, enrich.M08InvestorIntelligence)
	assert.Contains(t, result.CompletedModules, enrich.M14SignalScoring)
	assert.Len(t, result.CompletedModules, 12)
}

func TestSingleModuleRequest(t *testing.T) {
	sched := newTestScheduler(t, nil)
	result, err := sched.Enrich(context.Background(), &JobSpec{
		Domain:  "costco.com",
		Modules: []string{enrich.M02TechnologyStack},
	})
	require.NoError(t, err)

	assert.Equal(t, JobCompleted, result.Status)
	assert.Equal(t, []string{enrich.M02TechnologyStack}, result.CompletedModules)
	require.Len(t, result.Waves, 1)
}

func TestDependencyFailureSkipsDependents(t *testing.T) {
	// M02 fails; M05 (needs M02), M11, M12, M13 skip; M01 stays critical but
	// succeeds, so the job continues and ends partial.
	overrides := map[string]*stubModule{
		enrich.M02TechnologyStack: {fail: errors.New("fingerprint upstream down")},
	}
	sched := newTestScheduler(t, overrides)
	result, err := sched.Enrich(context.Background(), &JobSpec{Domain: "example.com", MaxRetries: retries(0)})
	require.NoError(t, err)

	assert.Equal(t, JobPartial, result.Status)
	assert.Contains(t, result.FailedModules, enrich.M02TechnologyStack)
	assert.Contains(t, result.SkippedModules, enrich.M05CompetitorIntelligence)
	assert.Contains(t, result.SkippedModules, enrich.M11DisplacementAnalysis)
	assert.Contains(t, result.SkippedModules, enrich.M13IcpPriorityMapping)
	// M15 depends on everything, so it skips too.
	assert.Contains(t, result.SkippedModules, enrich.M15StrategicBrief)
	// Independent wave-1 modules still completed.
	assert.Contains(t, result.CompletedModules, enrich.M01CompanyContext)
	assert.Contains(t, result.CompletedModules, enrich.M03TrafficAnalysis)

	skipped := result.Results[enrich.M05CompetitorIntelligence]
	require.NotNil(t, skipped)
	assert.Equal(t, enrich.StatusSkipped, skipped.Status)
}

func TestCriticalModuleFailureAborts(t *testing.T) {
	overrides := map[string]*stubModule{
		enrich.M01CompanyContext: {fail: errors.New("resolver exhausted retries")},
	}
	sched := newTestScheduler(t, overrides)
	result, err := sched.Enrich(context.Background(), &JobSpec{Domain: "example.com", MaxRetries: retries(0)})
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Equal(t, JobFailed, result.Status)
	require.Len(t, result.Waves, 1) // waves 2-4 never executed
	assert.NotContains(t, result.CompletedModules, enrich.M05CompetitorIntelligence)
	assert.NotContains(t, result.FailedModules, enrich.M05CompetitorIntelligence)
	found := false
	for _, msg := range result.Errors {
		if msg == "critical module m01_company_context failed" {
			found = true
		}
	}
	assert.True(t, found, "critical error recorded: %v", result.Errors)
}

func TestModulePanicContained(t *testing.T) {
	overrides := map[string]*stubModule{
		enrich.M03TrafficAnalysis: {panic: true},
	}
	sched := newTestScheduler(t, overrides)
	result, err := sched.Enrich(context.Background(), &JobSpec{Domain: "example.com", MaxRetries: retries(0)})
	require.NoError(t, err)

	assert.Contains(t, result.FailedModules, enrich.M03TrafficAnalysis)
	failed := result.Results[enrich.M03TrafficAnalysis]
	require.NotNil(t, failed)
	assert.Contains(t, failed.ErrorMessage, "panicked")
}

func TestModuleTimeout(t *testing.T) {
	overrides := map[string]*stubModule{
		enrich.M04FinancialProfile: {delay: 2 * time.Second},
	}
	sched := newTestScheduler(t, overrides)
	result, err := sched.Enrich(context.Background(), &JobSpec{
		Domain:               "example.com",
		Modules:              []string{enrich.M04FinancialProfile},
		ModuleTimeoutSeconds: 1,
		MaxRetries:           retries(0),
	})
	require.NoError(t, err)

	failed := result.Results[enrich.M04FinancialProfile]
	require.NotNil(t, failed)
	assert.Equal(t, enrich.StatusFailed, failed.Status)
	assert.Equal(t, enrich.ErrTypeTimeout, failed.ErrorType)
}

func TestJobCancelled(t *testing.T) {
	overrides := map[string]*stubModule{
		enrich.M01CompanyContext: {delay: 5 * time.Second},
	}
	sched := newTestScheduler(t, overrides)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	result, err := sched.Enrich(ctx, &JobSpec{Domain: "example.com", MaxRetries: retries(0)})
	require.NoError(t, err)
	assert.Equal(t, JobCancelled, result.Status)
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	flaky := &stubModule{}
	flaky.onRun = func() {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			flaky.fail = errors.New("transient")
		} else {
			flaky.fail = nil
		}
	}
	sched := newTestScheduler(t, map[string]*stubModule{enrich.M02TechnologyStack: flaky})
	result, err := sched.Enrich(context.Background(), &JobSpec{
		Domain:     "example.com",
		Modules:    []string{enrich.M02TechnologyStack},
		MaxRetries: retries(2),
	})
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, result.Status)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestGuardSkipsRepeatOffender(t *testing.T) {
	overrides := map[string]*stubModule{
		enrich.M03TrafficAnalysis: {fail: errors.New("hard down")},
	}
	sched := newTestScheduler(t, overrides)
	spec := func() *JobSpec {
		return &JobSpec{Domain: "example.com", Modules: []string{enrich.M03TrafficAnalysis}, MaxRetries: retries(0)}
	}

	// Three consecutive failing jobs trip the scheduler-local guard.
	for i := 0; i < 3; i++ {
		result, err := sched.Enrich(context.Background(), spec())
		require.NoError(t, err)
		assert.Equal(t, JobFailed, result.Status, "job %d", i)
	}

	result, err := sched.Enrich(context.Background(), spec())
	require.NoError(t, err)
	skipped := result.Results[enrich.M03TrafficAnalysis]
	require.NotNil(t, skipped)
	assert.Equal(t, enrich.StatusSkipped, skipped.Status)
	assert.Equal(t, skipReasonBreaker, skipped.ErrorMessage)
}

func TestProgressEventsEmitted(t *testing.T) {
	mgr := progress.NewManager(time.Hour, zerolog.Nop())

	// Subscribe from inside a wave-1 module so the stream is attached before
	// the job can complete; the tracker closes it on the terminal event.
	var events []progress.Event
	var wg sync.WaitGroup
	var once sync.Once
	hook := &stubModule{delay: 20 * time.Millisecond}
	hook.onRun = func() {
		once.Do(func() {
			active := mgr.Active()
			if len(active) != 1 {
				return
			}
			tracker, ok := mgr.Get(active[0].JobID)
			if !ok {
				return
			}
			ch := tracker.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range ch {
					events = append(events, ev)
				}
			}()
		})
	}

	sched := New(stubRegistry(t, map[string]*stubModule{enrich.M01CompanyContext: hook}), mgr, metrics.New(), zerolog.Nop())
	_, err := sched.Enrich(context.Background(), &JobSpec{Domain: "example.com"})
	require.NoError(t, err)
	wg.Wait()
	require.NotEmpty(t, events)

	var sawWaveStart, sawModuleComplete, sawJobComplete bool
	for _, ev := range events {
		switch ev.Event {
		case progress.EventWaveStart:
			sawWaveStart = true
		case progress.EventModuleComplete:
			sawModuleComplete = true
		case progress.EventJobComplete:
			sawJobComplete = true
			assert.InDelta(t, 100.0, ev.OverallPercent, 1e-9)
		}
	}
	assert.True(t, sawWaveStart)
	assert.True(t, sawModuleComplete)
	assert.True(t, sawJobComplete)
}

func TestFinalizeStatuses(t *testing.T) {
	build := func(outcomes map[string]string) *EnrichmentResult {
		r := &EnrichmentResult{Waves: []WaveResult{{Number: 1, Outcomes: outcomes}}}
		r.finalize(false)
		return r
	}

	assert.Equal(t, JobCompleted, build(map[string]string{"m01_company_context": "success"}).Status)
	assert.Equal(t, JobFailed, build(map[string]string{"m01_company_context": "failed"}).Status)
	assert.Equal(t, JobPartial, build(map[string]string{
		"m01_company_context": "success",
		"m02_technology_stack": "failed",
	}).Status)

	// An abort fails the job even with wave-one successes on the books.
	aborted := &EnrichmentResult{
		Aborted: true,
		Waves: []WaveResult{{Number: 1, Outcomes: map[string]string{
			"m01_company_context":  "failed",
			"m02_technology_stack": "success",
		}}},
	}
	aborted.finalize(false)
	assert.Equal(t, JobFailed, aborted.Status)

	cancelled := &EnrichmentResult{Waves: []WaveResult{{Outcomes: map[string]string{"m01_company_context": "success"}}}}
	cancelled.finalize(true)
	assert.Equal(t, JobCancelled, cancelled.Status)
}

func TestSuccessRate(t *testing.T) {
	r := &EnrichmentResult{
		CompletedModules: []string{"a", "b", "c"},
		FailedModules:    []string{"d"},
	}
	assert.InDelta(t, 0.75, r.SuccessRate(), 1e-9)
	assert.Zero(t, (&EnrichmentResult{}).SuccessRate())
}

func TestEnrichRejectsBadSpec(t *testing.T) {
	sched := newTestScheduler(t, nil)
	_, err := sched.Enrich(context.Background(), &JobSpec{Domain: ""})
	require.Error(t, err)
	_, err = sched.Enrich(context.Background(), &JobSpec{Domain: "example.com", Modules: []string{fmt.Sprintf("m%02d_nope", 42)}})
	require.Error(t, err)
}
