package models

import "time"

// Phase is the position of the sync loop in its state machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseStopped  Phase = "stopped"
)

// Outcome records how the most recent fetch attempt ended.
type Outcome string

const (
	OutcomeNone    Outcome = "none"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SyncState tracks connectivity with the readings collaborator.
// One instance is owned by the sync controller; consumers receive copies.
type SyncState struct {
	Phase                 Phase     `json:"phase"`
	LastOutcome           Outcome   `json:"last_outcome"`
	AttemptID             string    `json:"attempt_id,omitempty"` // set when a fetch begins
	LastAttemptAt         time.Time `json:"last_attempt_at"`
	LastSuccessfulFetchAt time.Time `json:"last_successful_fetch_at"`
	ConsecutiveFailures   int       `json:"consecutive_failures"`
	IsDegraded            bool      `json:"is_degraded"`
	LastError             string    `json:"last_error,omitempty"`
	Kept                  int       `json:"kept"`    // records accepted from the last good batch
	Dropped               int       `json:"dropped"` // records rejected from the last good batch
}

// NewSyncState returns the startup state: idle with no data yet.
func NewSyncState() SyncState {
	return SyncState{
		Phase:       PhaseIdle,
		LastOutcome: OutcomeNone,
	}
}

// HasData reports whether at least one fetch has succeeded.
func (s SyncState) HasData() bool {
	return !s.LastSuccessfulFetchAt.IsZero()
}

// Staleness returns how long ago the last successful fetch happened, or zero
// when nothing was fetched yet.
func (s SyncState) Staleness(now time.Time) time.Duration {
	if !s.HasData() {
		return 0
	}
	return now.Sub(s.LastSuccessfulFetchAt)
}
