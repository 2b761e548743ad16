package progress

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testModules = []string{"m01_company_context", "m02_technology_stack", "m03_traffic_analysis", "m04_financial_profile"}

func newClockedTracker(t *testing.T, estimate float64) (*Tracker, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker("job-1", "example.com", testModules, estimate, zerolog.Nop())
	tracker.now = func() time.Time { return clock }
	return tracker, &clock
}

func TestSnapshotBeforeStart(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	snap := tracker.Snapshot()

	assert.Equal(t, StateQueued, snap.Status)
	assert.Zero(t, snap.ElapsedSeconds)
	assert.Zero(t, snap.OverallPercent)
	// With no completed work the estimate is the upfront one.
	assert.InDelta(t, 40, snap.EstimatedRemainingSeconds, 1e-9)
	assert.Len(t, snap.Modules, len(testModules))
	for _, mp := range snap.Modules {
		assert.Equal(t, StateQueued, mp.Status)
	}
}

func TestPercentCountsTerminalModules(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	tracker.JobStart()
	tracker.ModuleComplete("m01_company_context", StateSuccess, "", 100)
	tracker.ModuleComplete("m02_technology_stack", StateFailed, "boom", 50)
	tracker.ModuleComplete("m03_traffic_analysis", StateSkipped, "dependency not met", 0)
	tracker.ModuleStart("m04_financial_profile")

	snap := tracker.Snapshot()
	assert.InDelta(t, 75.0, snap.OverallPercent, 1e-9)
	assert.Equal(t, StateRunning, snap.Modules["m04_financial_profile"].Status)
}

func TestRemainingFromElapsedRate(t *testing.T) {
	tracker, clock := newClockedTracker(t, 40)
	tracker.JobStart()
	tracker.ModuleComplete("m01_company_context", StateSuccess, "", 0)
	tracker.ModuleComplete("m02_technology_stack", StateSuccess, "", 0)

	// 10s elapsed at 50% done projects 10s remaining.
	*clock = clock.Add(10 * time.Second)
	snap := tracker.Snapshot()
	assert.InDelta(t, 10.0, snap.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 50.0, snap.OverallPercent, 1e-9)
	assert.InDelta(t, 10.0, snap.EstimatedRemainingSeconds, 1e-9)
}

func TestElapsedFrozenAfterCompletion(t *testing.T) {
	tracker, clock := newClockedTracker(t, 40)
	tracker.JobStart()
	*clock = clock.Add(5 * time.Second)
	tracker.JobComplete(StateCompleted)
	*clock = clock.Add(time.Hour)

	snap := tracker.Snapshot()
	assert.InDelta(t, 5.0, snap.ElapsedSeconds, 1e-9)
	assert.Equal(t, StateCompleted, snap.Status)
	require.NotNil(t, snap.CompletedAt)
}

func TestSubscribeStreamsLifecycle(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	ch := tracker.Subscribe()

	tracker.JobStart()
	tracker.WaveStart(1, testModules)
	tracker.ModuleStart("m01_company_context")
	tracker.ModuleProgressNote("m01_company_context", "resolving company identity")
	tracker.ModuleComplete("m01_company_context", StateSuccess, "", 120)
	tracker.WaveComplete(1, StateCompleted)
	tracker.JobComplete(StateCompleted)

	var got []EventType
	for ev := range ch {
		got = append(got, ev.Event)
		assert.Equal(t, "job-1", ev.JobID)
	}
	assert.Equal(t, []EventType{
		EventJobStart, EventWaveStart, EventModuleStart, EventModuleProgress,
		EventModuleComplete, EventWaveComplete, EventJobComplete,
	}, got)
}

func TestJobCompletePercentAndTerminal(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	ch := tracker.Subscribe()
	for _, id := range testModules {
		tracker.ModuleComplete(id, StateSuccess, "", 0)
	}
	tracker.JobComplete(StateCompleted)

	var last Event
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, EventJobComplete, last.Event)
	assert.True(t, last.Terminal())
	assert.InDelta(t, 100.0, last.OverallPercent, 1e-9)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	tracker.buffer = 1
	ch := tracker.Subscribe()

	tracker.ModuleStart("m01_company_context")
	tracker.ModuleStart("m02_technology_stack") // evicts the first event

	ev := <-ch
	assert.Equal(t, EventModuleStart, ev.Event)
	assert.Equal(t, "m02_technology_stack", ev.Data["module_id"])

	tracker.JobComplete(StateCompleted)
	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, EventJobComplete, ev.Event)
	_, ok = <-ch
	assert.False(t, ok, "channel closed after terminal event")
}

func TestSubscribeAfterCompletion(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	tracker.JobStart()
	tracker.JobComplete(StateCompleted)

	_, ok := <-tracker.Subscribe()
	assert.False(t, ok, "late subscription yields a closed channel")
}

func TestCriticalErrorRecorded(t *testing.T) {
	tracker, _ := newClockedTracker(t, 40)
	tracker.JobStart()
	tracker.CriticalError("critical module m01_company_context failed")

	snap := tracker.Snapshot()
	require.Len(t, snap.CriticalErrors, 1)
	assert.Contains(t, snap.CriticalErrors[0], "m01_company_context")
}

func TestManagerActiveAndSweep(t *testing.T) {
	mgr := NewManager(time.Hour, zerolog.Nop())

	running := mgr.Create("job-running", "a.com", testModules, 40)
	running.JobStart()
	done := mgr.Create("job-done", "b.com", testModules, 40)
	done.JobStart()
	done.JobComplete(StateCompleted)

	active := mgr.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "job-running", active[0].JobID)

	// Nothing old enough yet.
	assert.Zero(t, mgr.Sweep())

	mgr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, mgr.Sweep())
	_, ok := mgr.Get("job-done")
	assert.False(t, ok)
	_, ok = mgr.Get("job-running")
	assert.True(t, ok)
}

func TestManagerRetentionDefault(t *testing.T) {
	mgr := NewManager(0, zerolog.Nop())
	assert.Equal(t, DefaultRetention, mgr.retention)
}
