package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.SessionRepository = (*sessionRepo)(nil)

type sessionRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewSessionRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *sessionRepo {
	return &sessionRepo{pool: pool, tm: tm}
}

// Save creates or replaces a session. Sessions are owned by the intake flow;
// the service itself only reads them.
func (r *sessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Session) error {
	profile, err := json.Marshal(s.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	const q = `
INSERT INTO sessions (id, profile, photo_path, photo_content_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  profile = EXCLUDED.profile,
  photo_path = EXCLUDED.photo_path,
  photo_content_type = EXCLUDED.photo_content_type;`

	_, err = execSQL(ctx, r.pool, tx, q, s.ID, profile, s.PhotoPath, s.PhotoContentType)
	return err
}

func (r *sessionRepo) Read(ctx context.Context, sessionID string) (*model.Session, error) {
	row, err := pickRow(ctx, r.pool, nil,
		`SELECT id, profile, photo_path, photo_content_type FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	var (
		s       model.Session
		profile []byte
	)
	if err := row.Scan(&s.ID, &profile, &s.PhotoPath, &s.PhotoContentType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if err := json.Unmarshal(profile, &s.Profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) WriteArtifacts(ctx context.Context, sessionID string, artifacts []*model.Artifact) error {
	const q = `
INSERT INTO session_artifacts
  (id, session_id, step_id, ordinal, content_type, path, quality_status, quality_hint, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING;`

	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, a := range artifacts {
			_, err := execSQL(ctx, r.pool, tx, q,
				a.ID, sessionID, a.StepID, a.Ordinal, a.ContentType, a.Path,
				string(a.QualityStatus), a.QualityHint, a.Attempts, a.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert artifact %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (r *sessionRepo) ListArtifacts(ctx context.Context, sessionID string) ([]*model.Artifact, error) {
	const q = `
SELECT id, session_id, step_id, ordinal, content_type, path, quality_status, quality_hint, attempts, created_at
FROM (
  SELECT DISTINCT ON (step_id) *
  FROM session_artifacts
  WHERE session_id = $1
  ORDER BY step_id, created_at DESC
) latest
ORDER BY ordinal;`

	rows, err := queryRows(ctx, r.pool, nil, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Artifact{}
	for rows.Next() {
		var (
			a      model.Artifact
			status string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StepID, &a.Ordinal, &a.ContentType, &a.Path,
			&status, &a.QualityHint, &a.Attempts, &a.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		a.QualityStatus = model.QualityStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}
