// Package audit records the lifecycle of ingestion runs. Events are emitted
// from the pipeline through a channel, persisted by a worker, and optionally
// published to Kafka from a transactional outbox.
package audit

import "time"

// Action names a run lifecycle transition.
type Action string

const (
	ActionRunStarted      Action = "run_started"
	ActionRunSkippedFresh Action = "run_skipped_fresh"
	ActionRunCompleted    Action = "run_completed"
	ActionRunFailed       Action = "run_failed"
)

// RunCounts summarizes record-level outcomes for completed runs.
type RunCounts struct {
	Parsed         int `json:"parsed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Failed         int `json:"failed"`
	SkippedRecords int `json:"skipped_records"`
}

// Event is emitted from the ingestion pipeline to capture run transitions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Action    Action     `json:"action"`
	Reason    string     `json:"reason,omitempty"`
	Counts    *RunCounts `json:"counts,omitempty"`
}
