package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusScoring     RunStatus = "scoring"
	RunStatusDrafting    RunStatus = "drafting"
	RunStatusRecording   RunStatus = "recording"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
)

// Stage names the pipeline stages, used for run tracking and error reporting.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageAssign   Stage = "assign"
	StageClassify Stage = "classify"
	StageScore    Stage = "score"
	StageDraft    Stage = "draft"
	StageRecord   Stage = "record"
)

// Urgency bounds. The scorer emits {0,1,2}; the store clamps anything
// outside this range at the write boundary.
const (
	MinUrgency = 0
	MaxUrgency = 2
)

// Email is the central record of the triage pipeline. ID, Timestamp,
// Sender, Subject and Body are immutable once the record is created;
// only the three derived fields transition from unset to set, exactly
// once, when the recorder commits a completed run.
type Email struct {
	ID           int64   `json:"email_id"`
	Timestamp    string  `json:"timestamp"`
	Sender       string  `json:"sender"`
	Subject      string  `json:"subject"`
	Body         string  `json:"body"`
	IntentLabel  *string `json:"intent_label,omitempty"`
	UrgencyScore *int    `json:"urgency_score,omitempty"`
	Response     *string `json:"response,omitempty"`
}

// HasID reports whether the email carries a provisional identifier from
// the upstream source. Assigned identifiers are always positive.
func (e *Email) HasID() bool {
	return e.ID > 0
}

// ContentEqual reports whether two emails carry the same immutable
// content, ignoring identifiers and derived fields. Used by the dedup
// assignment policy to decide whether an existing row can be reused.
func (e *Email) ContentEqual(other *Email) bool {
	if other == nil {
		return false
	}
	return e.Sender == other.Sender &&
		e.Subject == other.Subject &&
		e.Body == other.Body
}

// ClampUrgency forces an urgency score into [MinUrgency, MaxUrgency].
func ClampUrgency(n int) int {
	if n < MinUrgency {
		return MinUrgency
	}
	if n > MaxUrgency {
		return MaxUrgency
	}
	return n
}

// Run is one audit row per pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	EmailID    *int64     `json:"email_id,omitempty"`
	Status     RunStatus  `json:"status"`
	Stage      Stage      `json:"stage,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
