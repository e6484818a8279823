package domain

import (
	"context"
	"errors"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Job store errors
	ErrAlreadyLocked = errors.New("job is locked by another worker")
	ErrLockLost      = errors.New("job lock lost to another worker")
	ErrJobTerminal   = errors.New("job already reached a terminal state")

	// Generation errors
	ErrBudgetExceeded      = errors.New("generation budget exceeded")
	ErrGenerationDisabled  = errors.New("generation is disabled")
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	ErrProviderRejected    = errors.New("generation provider rejected the request")
	ErrEmptyOutput         = errors.New("provider returned empty output")
	ErrQueueFull           = errors.New("worker queue full")
)

// ErrorKind is the classified reason a job failed. It is persisted on the job
// record and reported to callers.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindLockLost            ErrorKind = "lock_lost"
	KindBudgetExceeded      ErrorKind = "budget_exceeded"
	KindGenerationDisabled  ErrorKind = "generation_disabled"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindProviderRejected    ErrorKind = "provider_rejected"
	KindInternal            ErrorKind = "internal"
)

// KindOf maps an error to its failure classification.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrLockLost):
		return KindLockLost
	case errors.Is(err, ErrBudgetExceeded):
		return KindBudgetExceeded
	case errors.Is(err, ErrGenerationDisabled):
		return KindGenerationDisabled
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindProviderUnavailable
	case errors.Is(err, ErrProviderRejected), errors.Is(err, ErrEmptyOutput):
		return KindProviderRejected
	default:
		return KindInternal
	}
}
