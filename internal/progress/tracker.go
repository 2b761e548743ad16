// Package progress tracks per-job enrichment progress and fans events out to
// bounded subscriber channels. Producers never block: a slow subscriber loses
// its oldest event instead of stalling the scheduler.
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Module execution states mirrored into the tracker.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateSuccess   = "success"
	StateFailed    = "failed"
	StateSkipped   = "skipped"
	StateCompleted = "completed"
	StatePartial   = "partial"
	StateCancelled = "cancelled"
)

// ModuleProgress is the tracked state of one module.
type ModuleProgress struct {
	ModuleID    string     `json:"module_id"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// WaveProgress is the tracked state of one wave.
type WaveProgress struct {
	Wave        int        `json:"wave"`
	Status      string     `json:"status"`
	ModuleIDs   []string   `json:"module_ids"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobProgress is the full snapshot handed to pollers.
type JobProgress struct {
	JobID                     string                    `json:"job_id"`
	Domain                    string                    `json:"domain"`
	Status                    string                    `json:"status"`
	CurrentWave               int                       `json:"current_wave"`
	Modules                   map[string]ModuleProgress `json:"modules"`
	Waves                     map[int]WaveProgress      `json:"waves"`
	QueuedAt                  time.Time                 `json:"queued_at"`
	StartedAt                 *time.Time                `json:"started_at,omitempty"`
	CompletedAt               *time.Time                `json:"completed_at,omitempty"`
	EstimatedTotalSeconds     float64                   `json:"estimated_total_seconds"`
	ElapsedSeconds            float64                   `json:"elapsed_seconds"`
	EstimatedRemainingSeconds float64                   `json:"estimated_remaining_seconds"`
	OverallPercent            float64                   `json:"overall_percent"`
	CriticalErrors            []string                  `json:"critical_errors"`
}

// DefaultSubscriberBuffer bounds each subscriber channel.
const DefaultSubscriberBuffer = 64

// Tracker tracks one job.
type Tracker struct {
	mu          sync.Mutex
	jobID       string
	domain      string
	status      string
	currentWave int
	modules     map[string]*ModuleProgress
	waves       map[int]*WaveProgress
	queuedAt    time.Time
	startedAt   *time.Time
	completedAt *time.Time
	estimate    float64
	critical    []string
	subscribers []chan Event
	buffer      int
	log         zerolog.Logger
	now         func() time.Time
}

// NewTracker builds a tracker for the given module set with the upfront time
// estimate.
func NewTracker(jobID, domain string, moduleIDs []string, estimateSeconds float64, log zerolog.Logger) *Tracker {
	t := &Tracker{
		jobID:    jobID,
		domain:   domain,
		status:   StateQueued,
		modules:  make(map[string]*ModuleProgress, len(moduleIDs)),
		waves:    map[int]*WaveProgress{},
		estimate: estimateSeconds,
		buffer:   DefaultSubscriberBuffer,
		log:      log.With().Str("job_id", jobID).Str("domain", domain).Logger(),
		now:      time.Now,
	}
	t.queuedAt = t.now()
	for _, id := range moduleIDs {
		t.modules[id] = &ModuleProgress{ModuleID: id, Status: StateQueued}
	}
	return t
}

// Subscribe registers a bounded event channel. The channel closes after a
// terminal event; subscribing to an already-completed job yields a closed
// channel immediately.
func (t *Tracker) Subscribe() <-chan Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Event, t.buffer)
	if t.completedAt != nil {
		close(ch)
		return ch
	}
	t.subscribers = append(t.subscribers, ch)
	return ch
}

// JobStart marks the job running.
func (t *Tracker) JobStart() {
	t.mu.Lock()
	now := t.now()
	t.startedAt = &now
	t.status = StateRunning
	t.mu.Unlock()
	t.emit(EventJobStart, map[string]any{"estimated_total_seconds": t.estimate})
}

// WaveStart marks a wave running.
func (t *Tracker) WaveStart(wave int, moduleIDs []string) {
	t.mu.Lock()
	now := t.now()
	t.currentWave = wave
	t.waves[wave] = &WaveProgress{Wave: wave, Status: StateRunning, ModuleIDs: moduleIDs, StartedAt: &now}
	t.mu.Unlock()
	t.emit(EventWaveStart, map[string]any{"wave": wave, "modules": moduleIDs})
}

// ModuleStart marks a module running.
func (t *Tracker) ModuleStart(moduleID string) {
	t.mu.Lock()
	if mp, ok := t.modules[moduleID]; ok {
		now := t.now()
		mp.Status = StateRunning
		mp.StartedAt = &now
	}
	t.mu.Unlock()
	t.emit(EventModuleStart, map[string]any{"module_id": moduleID})
}

// ModuleProgressNote emits an intermediate module note without a state
// change.
func (t *Tracker) ModuleProgressNote(moduleID, message string) {
	t.mu.Lock()
	if mp, ok := t.modules[moduleID]; ok {
		mp.Message = message
	}
	t.mu.Unlock()
	t.emit(EventModuleProgress, map[string]any{"module_id": moduleID, "message": message})
}

// ModuleComplete records a module's terminal status.
func (t *Tracker) ModuleComplete(moduleID, status, message string, durationMS int64) {
	t.mu.Lock()
	if mp, ok := t.modules[moduleID]; ok {
		now := t.now()
		mp.Status = status
		mp.CompletedAt = &now
		mp.DurationMS = durationMS
		mp.Message = message
	}
	t.mu.Unlock()
	t.emit(EventModuleComplete, map[string]any{"module_id": moduleID, "status": status, "duration_ms": durationMS})
}

// WaveComplete records a wave's aggregate status.
func (t *Tracker) WaveComplete(wave int, status string) {
	t.mu.Lock()
	if wp, ok := t.waves[wave]; ok {
		now := t.now()
		wp.Status = status
		wp.CompletedAt = &now
	}
	t.mu.Unlock()
	t.emit(EventWaveComplete, map[string]any{"wave": wave, "status": status})
}

// CriticalError records an abort-worthy failure.
func (t *Tracker) CriticalError(message string) {
	t.mu.Lock()
	t.critical = append(t.critical, message)
	t.mu.Unlock()
	t.emit(EventError, map[string]any{"message": message})
}

// JobComplete records the final job status and closes all subscriber
// channels.
func (t *Tracker) JobComplete(status string) {
	t.mu.Lock()
	now := t.now()
	t.completedAt = &now
	t.status = status
	t.mu.Unlock()
	t.emit(EventJobComplete, map[string]any{"status": status})

	t.mu.Lock()
	subs := t.subscribers
	t.subscribers = nil
	t.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// Snapshot returns the current job progress.
func (t *Tracker) Snapshot() JobProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() JobProgress {
	modules := make(map[string]ModuleProgress, len(t.modules))
	for id, mp := range t.modules {
		modules[id] = *mp
	}
	waves := make(map[int]WaveProgress, len(t.waves))
	for n, wp := range t.waves {
		waves[n] = *wp
	}

	elapsed := 0.0
	if t.startedAt != nil {
		end := t.now()
		if t.completedAt != nil {
			end = *t.completedAt
		}
		elapsed = end.Sub(*t.startedAt).Seconds()
	}
	percent := t.percentLocked()

	remaining := t.estimate
	if percent > 0 {
		remaining = (elapsed/(percent/100) - elapsed)
		if remaining < 0 {
			remaining = 0
		}
	}

	critical := make([]string, len(t.critical))
	copy(critical, t.critical)

	return JobProgress{
		JobID:                     t.jobID,
		Domain:                    t.domain,
		Status:                    t.status,
		CurrentWave:               t.currentWave,
		Modules:                   modules,
		Waves:                     waves,
		QueuedAt:                  t.queuedAt,
		StartedAt:                 t.startedAt,
		CompletedAt:               t.completedAt,
		EstimatedTotalSeconds:     t.estimate,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: remaining,
		OverallPercent:            percent,
		CriticalErrors:            critical,
	}
}

// percentLocked is (completed + failed) / total * 100; skipped counts as
// completed work.
func (t *Tracker) percentLocked() float64 {
	if len(t.modules) == 0 {
		return 0
	}
	done := 0
	for _, mp := range t.modules {
		switch mp.Status {
		case StateSuccess, StateFailed, StateSkipped:
			done++
		}
	}
	return float64(done) / float64(len(t.modules)) * 100
}

// emit fans the event out to every subscriber, dropping the oldest queued
// event for any subscriber whose buffer is full.
func (t *Tracker) emit(eventType EventType, data map[string]any) {
	t.mu.Lock()
	event := Event{
		Event:          eventType,
		Data:           data,
		Timestamp:      t.now(),
		JobID:          t.jobID,
		OverallPercent: t.percentLocked(),
	}
	subs := make([]chan Event, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	t.log.Debug().Str("event", string(eventType)).Float64("percent", event.OverallPercent).Msg("progress")
}
