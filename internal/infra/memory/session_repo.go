package memory

import (
	"context"
	"sort"
	"sync"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"
)

type SessionRepo struct {
	mu        sync.RWMutex
	sessions  map[string]*model.Session
	artifacts map[string]map[string]*model.Artifact // session -> step -> latest
}

var _ repository.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions:  make(map[string]*model.Session),
		artifacts: make(map[string]map[string]*model.Artifact),
	}
}

// Put registers or replaces a session.
func (r *SessionRepo) Put(s *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
}

func (r *SessionRepo) Read(_ context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepo) WriteArtifacts(_ context.Context, sessionID string, artifacts []*model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return domain.ErrNotFound
	}
	byStep := r.artifacts[sessionID]
	if byStep == nil {
		byStep = make(map[string]*model.Artifact)
		r.artifacts[sessionID] = byStep
	}
	for _, a := range artifacts {
		cp := *a
		cp.Data = nil
		byStep[a.StepID] = &cp
	}
	return nil
}

func (r *SessionRepo) ListArtifacts(_ context.Context, sessionID string) ([]*model.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]*model.Artifact, 0, len(r.artifacts[sessionID]))
	for _, a := range r.artifacts[sessionID] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}
