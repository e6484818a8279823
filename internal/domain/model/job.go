package model

import (
	"slices"
	"time"

	"ai-transform-service/internal/domain"
)

type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateLocked     JobState = "locked"
	JobStateInProgress JobState = "in_progress"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is the unit of orchestrated work for one session. At most one worker
// holds a live lease (LockToken + LockExpiresAt) at a time.
type Job struct {
	SessionID      string
	State          JobState
	LockToken      string
	LockExpiresAt  *time.Time
	Attempts       int
	CompletedSteps []string
	DegradedSteps  []string
	LastError      domain.ErrorKind
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewJob(sessionID string, now time.Time) *Job {
	return &Job{
		SessionID:      sessionID,
		State:          JobStatePending,
		CompletedSteps: []string{},
		DegradedSteps:  []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasCompleted reports whether stepID was already produced.
func (j *Job) HasCompleted(stepID string) bool {
	return slices.Contains(j.CompletedSteps, stepID)
}

// LockHeld reports whether a live lease exists at now. An expired lease counts
// as abandoned even if the token is still set.
func (j *Job) LockHeld(now time.Time) bool {
	if j.LockToken == "" || j.LockExpiresAt == nil {
		return false
	}
	return now.Before(*j.LockExpiresAt)
}

// Clone returns a deep copy so stores never hand out shared slices.
func (j *Job) Clone() *Job {
	cp := *j
	cp.CompletedSteps = slices.Clone(j.CompletedSteps)
	cp.DegradedSteps = slices.Clone(j.DegradedSteps)
	if j.LockExpiresAt != nil {
		t := *j.LockExpiresAt
		cp.LockExpiresAt = &t
	}
	return &cp
}
