package model

import (
	"time"

	"ai-transform-service/internal/domain"
)

type ProgressEventType string

const (
	EventJobStarted    ProgressEventType = "job_started"
	EventStepStarted   ProgressEventType = "step_started"
	EventStepCompleted ProgressEventType = "step_completed"
	EventJobCompleted  ProgressEventType = "job_completed"
	EventJobFailed     ProgressEventType = "job_failed"
	EventJobBusy       ProgressEventType = "job_busy"
)

// ProgressEvent is emitted by the orchestrator as a job advances.
type ProgressEvent struct {
	SessionID     string            `json:"session_id"`
	Type          ProgressEventType `json:"type"`
	StepID        string            `json:"step_id,omitempty"`
	Ordinal       int               `json:"ordinal,omitempty"`
	Total         int               `json:"total"`
	QualityStatus QualityStatus     `json:"quality_status,omitempty"`
	Reason        domain.ErrorKind  `json:"reason,omitempty"`
	At            time.Time         `json:"at"`
}

type SubmitStatus string

const (
	SubmitBusy      SubmitStatus = "busy"
	SubmitCompleted SubmitStatus = "completed"
	SubmitFailed    SubmitStatus = "failed"
	SubmitPending   SubmitStatus = "pending"
)

// SubmitResult is what callers of the orchestrator see.
type SubmitResult struct {
	SessionID      string           `json:"session_id"`
	Status         SubmitStatus     `json:"status"`
	CompletedSteps []string         `json:"completed_steps"`
	DegradedSteps  []string         `json:"degraded_steps"`
	Reason         domain.ErrorKind `json:"reason,omitempty"`
}
