package model

import "time"

type QualityStatus string

const (
	QualityAccepted QualityStatus = "accepted"
	QualityDegraded QualityStatus = "degraded"
)

// Artifact is the output of one successful step. It is written once and never
// mutated; a failed quality check produces a new attempt instead.
type Artifact struct {
	ID            string
	SessionID     string
	StepID        string
	Ordinal       int
	ContentType   string
	Path          string
	Data          []byte `json:"-"`
	QualityStatus QualityStatus
	QualityHint   string
	Attempts      int
	CreatedAt     time.Time
}
