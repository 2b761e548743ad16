package progress

import "time"

// EventType names the lifecycle events a tracker emits.
type EventType string

const (
	EventJobStart       EventType = "job_start"
	EventWaveStart      EventType = "wave_start"
	EventModuleStart    EventType = "module_start"
	EventModuleProgress EventType = "module_progress"
	EventModuleComplete EventType = "module_complete"
	EventWaveComplete   EventType = "wave_complete"
	EventJobComplete    EventType = "job_complete"
	EventError          EventType = "error"
)

// Event is one progress notification.
type Event struct {
	Event          EventType      `json:"event"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	JobID          string         `json:"job_id"`
	OverallPercent float64        `json:"overall_percent"`
}

// Terminal reports whether the event ends a subscription stream.
func (e Event) Terminal() bool {
	return e.Event == EventJobComplete || e.Event == EventError
}
