package postgres

import (
	"context"
	"errors"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// jobRepo keeps leases on the database clock so every instance agrees on expiry.
type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `session_id, state, lock_token, lock_expires_at, attempts,
  completed_steps, degraded_steps, last_error, created_at, updated_at`

const terminalStates = `('completed', 'failed')`

func (r *jobRepo) GetOrCreate(ctx context.Context, sessionID string) (*model.Job, error) {
	// Insert and select run as separate statements: a single CTE would read a
	// snapshot that cannot see a row inserted concurrently by another session.
	if _, err := execSQL(ctx, r.pool, nil,
		`INSERT INTO generation_jobs (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`, sessionID); err != nil {
		return nil, err
	}
	return r.Get(ctx, sessionID)
}

func (r *jobRepo) Get(ctx context.Context, sessionID string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT `+jobColumns+` FROM generation_jobs WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) AcquireLock(ctx context.Context, sessionID string, lease time.Duration) (string, error) {
	const q = `
UPDATE generation_jobs
SET lock_token = $2,
    lock_expires_at = now() + $3::bigint * interval '1 millisecond',
    state = 'locked',
    attempts = attempts + 1,
    updated_at = now()
WHERE session_id = $1
  AND state NOT IN ` + terminalStates + `
  AND (lock_token IS NULL OR lock_expires_at <= now())
RETURNING lock_token;`

	row, err := pickRow(ctx, r.pool, nil, q, sessionID, uuid.NewString(), lease.Milliseconds())
	if err != nil {
		return "", err
	}
	var token string
	err = row.Scan(&token)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	// Nothing updated: tell the caller why.
	job, err := r.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if job.State.Terminal() {
		return "", domain.ErrJobTerminal
	}
	return "", domain.ErrAlreadyLocked
}

func (r *jobRepo) RenewLock(ctx context.Context, sessionID, token string, lease time.Duration) (bool, error) {
	const q = `
UPDATE generation_jobs
SET lock_expires_at = now() + $3::bigint * interval '1 millisecond',
    state = CASE WHEN state = 'locked' THEN 'in_progress' ELSE state END,
    updated_at = now()
WHERE session_id = $1 AND lock_token = $2 AND lock_expires_at > now()
  AND state NOT IN ` + terminalStates

	tag, err := execSQL(ctx, r.pool, nil, q, sessionID, token, lease.Milliseconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) RecordStepCompleted(ctx context.Context, sessionID, token, stepID string, status model.QualityStatus) error {
	const q = `
UPDATE generation_jobs
SET completed_steps = CASE WHEN $3::text = ANY(completed_steps) THEN completed_steps
                           ELSE array_append(completed_steps, $3::text) END,
    degraded_steps  = CASE WHEN $4::boolean AND NOT ($3::text = ANY(completed_steps))
                           THEN array_append(degraded_steps, $3::text) ELSE degraded_steps END,
    updated_at = now()
WHERE session_id = $1 AND lock_token = $2 AND lock_expires_at > now()
  AND state NOT IN ` + terminalStates

	tag, err := execSQL(ctx, r.pool, nil, q, sessionID, token, stepID, status == model.QualityDegraded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockLost
	}
	return nil
}

func (r *jobRepo) MarkCompleted(ctx context.Context, sessionID, token string) error {
	return r.finish(ctx, sessionID, token, model.JobStateCompleted, domain.KindNone)
}

func (r *jobRepo) MarkFailed(ctx context.Context, sessionID, token string, kind domain.ErrorKind) error {
	return r.finish(ctx, sessionID, token, model.JobStateFailed, kind)
}

func (r *jobRepo) finish(ctx context.Context, sessionID, token string, state model.JobState, kind domain.ErrorKind) error {
	const q = `
UPDATE generation_jobs
SET state = $3, last_error = $4, lock_token = NULL, lock_expires_at = NULL, updated_at = now()
WHERE session_id = $1 AND lock_token = $2 AND lock_expires_at > now()
  AND state NOT IN ` + terminalStates

	tag, err := execSQL(ctx, r.pool, nil, q, sessionID, token, string(state), string(kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockLost
	}
	return nil
}

func (r *jobRepo) ListRecoverable(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + jobColumns + ` FROM generation_jobs
WHERE state NOT IN ` + terminalStates + `
  AND (lock_token IS NULL OR lock_expires_at <= now())
ORDER BY updated_at
LIMIT $1`

	rows, err := queryRows(ctx, r.pool, nil, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j         model.Job
		state     string
		lastError string
		token     *string
	)
	err := row.Scan(&j.SessionID, &state, &token, &j.LockExpiresAt, &j.Attempts,
		&j.CompletedSteps, &j.DegradedSteps, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.State = model.JobState(state)
	j.LastError = domain.ErrorKind(lastError)
	if token != nil {
		j.LockToken = *token
	}
	if j.CompletedSteps == nil {
		j.CompletedSteps = []string{}
	}
	if j.DegradedSteps == nil {
		j.DegradedSteps = []string{}
	}
	return &j, nil
}
