package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetention is how long completed trackers stay queryable.
const DefaultRetention = 3600 * time.Second

// Manager owns the trackers for all known jobs.
type Manager struct {
	mu        sync.RWMutex
	trackers  map[string]*Tracker
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewManager builds a manager with the given retention for completed jobs.
func NewManager(retention time.Duration, log zerolog.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		trackers:  map[string]*Tracker{},
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// Create registers a new tracker for the job.
func (m *Manager) Create(jobID, domain string, moduleIDs []string, estimateSeconds float64) *Tracker {
	t := NewTracker(jobID, domain, moduleIDs, estimateSeconds, m.log)
	m.mu.Lock()
	m.trackers[jobID] = t
	m.mu.Unlock()
	return t
}

// Get returns the tracker for a job id.
func (m *Manager) Get(jobID string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[jobID]
	return t, ok
}

// Active lists snapshots of jobs that have not reached a terminal status.
func (m *Manager) Active() []JobProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []JobProgress
	for _, t := range m.trackers {
		snap := t.Snapshot()
		switch snap.Status {
		case StateQueued, StateRunning:
			active = append(active, snap)
		}
	}
	return active
}

// Sweep drops completed trackers older than the retention window and returns
// how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, t := range m.trackers {
		snap := t.Snapshot()
		if snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(m.trackers, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.Debug().Int("removed", removed).Msg("swept completed trackers")
	}
	return removed
}
