package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"

	"github.com/google/uuid"
)

// JobStore is a process-local JobRepository. It has the same lease semantics
// as the Postgres store and is used by tests and the demo command.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

var _ repository.JobRepository = (*JobStore)(nil)

func NewJobStore(now func() time.Time) *JobStore {
	if now == nil {
		now = time.Now
	}
	return &JobStore{jobs: make(map[string]*model.Job), now: now}
}

func (s *JobStore) GetOrCreate(_ context.Context, sessionID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if !ok {
		j = model.NewJob(sessionID, s.now())
		s.jobs[sessionID] = j
	}
	return j.Clone(), nil
}

func (s *JobStore) Get(_ context.Context, sessionID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *JobStore) AcquireLock(_ context.Context, sessionID string, lease time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if j.State.Terminal() {
		return "", domain.ErrJobTerminal
	}
	now := s.now()
	if j.LockHeld(now) {
		return "", domain.ErrAlreadyLocked
	}
	exp := now.Add(lease)
	j.LockToken = uuid.NewString()
	j.LockExpiresAt = &exp
	j.State = model.JobStateLocked
	j.Attempts++
	j.UpdatedAt = now
	return j.LockToken, nil
}

// owned returns the job iff token is its current live lease. Caller holds mu.
func (s *JobStore) owned(sessionID, token string) (*model.Job, error) {
	j, ok := s.jobs[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if token == "" || j.LockToken != token || j.State.Terminal() || !j.LockHeld(s.now()) {
		return nil, domain.ErrLockLost
	}
	return j, nil
}

func (s *JobStore) RenewLock(_ context.Context, sessionID, token string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(sessionID, token)
	if err == domain.ErrLockLost {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := s.now()
	exp := now.Add(lease)
	j.LockExpiresAt = &exp
	if j.State == model.JobStateLocked {
		j.State = model.JobStateInProgress
	}
	j.UpdatedAt = now
	return true, nil
}

func (s *JobStore) RecordStepCompleted(_ context.Context, sessionID, token, stepID string, status model.QualityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(sessionID, token)
	if err != nil {
		return err
	}
	if !slices.Contains(j.CompletedSteps, stepID) {
		j.CompletedSteps = append(j.CompletedSteps, stepID)
		if status == model.QualityDegraded {
			j.DegradedSteps = append(j.DegradedSteps, stepID)
		}
	}
	j.UpdatedAt = s.now()
	return nil
}

func (s *JobStore) MarkCompleted(_ context.Context, sessionID, token string) error {
	return s.finish(sessionID, token, model.JobStateCompleted, domain.KindNone)
}

func (s *JobStore) MarkFailed(_ context.Context, sessionID, token string, kind domain.ErrorKind) error {
	return s.finish(sessionID, token, model.JobStateFailed, kind)
}

func (s *JobStore) finish(sessionID, token string, state model.JobState, kind domain.ErrorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.owned(sessionID, token)
	if err != nil {
		return err
	}
	j.State = state
	j.LastError = kind
	j.LockToken = ""
	j.LockExpiresAt = nil
	j.UpdatedAt = s.now()
	return nil
}

func (s *JobStore) ListRecoverable(_ context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []*model.Job
	for _, j := range s.jobs {
		if j.State.Terminal() || j.LockHeld(now) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Expire drops the lease on sessionID as if its owner had crashed.
func (s *JobStore) Expire(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[sessionID]; ok && j.LockExpiresAt != nil {
		past := s.now().Add(-time.Nanosecond)
		j.LockExpiresAt = &past
	}
}
