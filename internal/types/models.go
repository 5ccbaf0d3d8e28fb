package types

import (
	"time"
)

// TriggerKind says what started a run.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one step of a run. Advisory steps (refresh, archive,
// sweep) are best-effort and never fail the run.
type StepResult struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Detail   string     `json:"detail,omitempty"`
	Duration int64      `json:"duration_ms"`
	Advisory bool       `json:"advisory,omitempty"`
}

// DeliveryDecision is the journaled form of a decider outcome.
type DeliveryDecision struct {
	Date       string `json:"date"`
	Hour       string `json:"hour"`
	FileExists bool   `json:"file_exists"`
	FlagExists bool   `json:"flag_exists"`
	Send       bool   `json:"send"`
	Reason     string `json:"reason,omitempty"`
}

// RunRecord is the journal entry written when a run finishes.
type RunRecord struct {
	ID          RunID             `json:"id"`
	Kind        TriggerKind       `json:"kind"`
	Status      string            `json:"status"`
	TriggeredAt time.Time         `json:"triggered_at"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Today       string            `json:"today"`
	Steps       []StepResult      `json:"steps"`
	Decision    *DeliveryDecision `json:"decision,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Failed reports whether any non-advisory step failed.
func (r *RunRecord) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == StepFailed && !s.Advisory {
			return true
		}
	}
	return false
}
