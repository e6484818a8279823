package repository

import (
	"context"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
)

// JobRepository is the persisted job store. Every mutation after AcquireLock is
// conditioned on the caller's lock token; a stale token yields domain.ErrLockLost.
type JobRepository interface {
	// GetOrCreate returns the job for sessionID, creating it as pending if absent.
	// Concurrent first calls converge on a single record.
	GetOrCreate(ctx context.Context, sessionID string) (*model.Job, error)

	// Get returns domain.ErrNotFound when no job exists.
	Get(ctx context.Context, sessionID string) (*model.Job, error)

	// AcquireLock takes the lease when none is held or the held one expired.
	// Returns domain.ErrAlreadyLocked or domain.ErrJobTerminal otherwise.
	AcquireLock(ctx context.Context, sessionID string, lease time.Duration) (string, error)

	// RenewLock extends the lease iff token is current. A locked job moves to
	// in_progress on its first renewal.
	RenewLock(ctx context.Context, sessionID, token string, lease time.Duration) (bool, error)

	RecordStepCompleted(ctx context.Context, sessionID, token, stepID string, status model.QualityStatus) error
	MarkCompleted(ctx context.Context, sessionID, token string) error
	MarkFailed(ctx context.Context, sessionID, token string, kind domain.ErrorKind) error

	// ListRecoverable returns non-terminal jobs without a live lease.
	ListRecoverable(ctx context.Context, limit int) ([]*model.Job, error)
}
