package adapter

import (
	"context"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
)

// Notifier alerts operators about jobs that failed for a reportable reason.
type Notifier interface {
	JobFailed(ctx context.Context, sessionID string, kind domain.ErrorKind) error
}

// ProgressSink receives progress events. Publish must not block the caller.
type ProgressSink interface {
	Publish(ev model.ProgressEvent)
}
