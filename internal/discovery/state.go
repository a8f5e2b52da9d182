package discovery

import "time"

// State is the scheduler's lifecycle state. Transitions happen only
// through scheduler methods; readers get an atomic snapshot via Status.
//
//	Stopped -> Running <-> Paused -> Stopped
//	Running/Paused -> EmergencyStopped -> Paused (after cooldown)
type State string

const (
	StateStopped          State = "stopped"
	StateRunning          State = "running"
	StatePaused           State = "paused"
	StateEmergencyStopped State = "emergency_stopped"
)

// ResourceStats is the monitor's latest view of the host.
type ResourceStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	// ThrottleMultiplier is the advisory interval multiplier derived
	// from load. It is computed and exposed but not applied to timers.
	ThrottleMultiplier float64 `json:"throttle_multiplier"`
	PauseCount         int     `json:"pause_count"`
	EmergencyCount     int     `json:"emergency_count"`
	SampledAt          time.Time `json:"sampled_at"`
}

// RunStats are cumulative counters since Start.
type RunStats struct {
	CrawlTicks         int `json:"crawl_ticks"`
	DocumentsProcessed int `json:"documents_processed"`
	TruthsExtracted    int `json:"truths_extracted"`
	TruthsValidated    int `json:"truths_validated"`
	MetaTruthsStored   int `json:"meta_truths_stored"`
	TrackedDocuments   int `json:"tracked_documents"`
}

// Snapshot is a point-in-time copy of the scheduler's state, safe to hand
// to callers.
type Snapshot struct {
	State       State         `json:"state"`
	PauseReason string        `json:"pause_reason,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	Resources   ResourceStats `json:"resources"`
	Stats       RunStats      `json:"stats"`
}
