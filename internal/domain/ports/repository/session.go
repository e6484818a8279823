package repository

import (
	"context"

	"ai-transform-service/internal/domain/model"
)

type SessionRepository interface {
	Read(ctx context.Context, sessionID string) (*model.Session, error)
	WriteArtifacts(ctx context.Context, sessionID string, artifacts []*model.Artifact) error
	// ListArtifacts returns the latest artifact per step, ordered by ordinal.
	ListArtifacts(ctx context.Context, sessionID string) ([]*model.Artifact, error)
}
