package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/usecase"
)

// GenerationProcessor runs submissions on the pool. A session is queued at
// most once at a time; the orchestrator lease handles cross-instance races.
type GenerationProcessor struct {
	uc      usecase.GenerationUseCase
	pool    *Pool
	timeout time.Duration
	log     *zerolog.Logger

	mu     sync.Mutex
	queued map[string]struct{}
}

func NewGenerationProcessor(uc usecase.GenerationUseCase, pool *Pool, timeout time.Duration, logger *zerolog.Logger) *GenerationProcessor {
	l := logger.With().Str("component", "GenerationProcessor").Logger()
	return &GenerationProcessor{uc: uc, pool: pool, timeout: timeout, log: &l, queued: make(map[string]struct{})}
}

// Enqueue schedules a submission. It reports whether the session was newly
// queued; false with a nil error means it was already waiting or running.
func (p *GenerationProcessor) Enqueue(sessionID string) (bool, error) {
	p.mu.Lock()
	if _, ok := p.queued[sessionID]; ok {
		p.mu.Unlock()
		return false, nil
	}
	p.queued[sessionID] = struct{}{}
	p.mu.Unlock()

	err := p.pool.Submit(func(ctx context.Context) error {
		defer p.release(sessionID)
		return p.process(ctx, sessionID)
	})
	if err != nil {
		p.release(sessionID)
		return false, err
	}
	return true, nil
}

func (p *GenerationProcessor) release(sessionID string) {
	p.mu.Lock()
	delete(p.queued, sessionID)
	p.mu.Unlock()
}

func (p *GenerationProcessor) process(ctx context.Context, sessionID string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := p.uc.Submit(ctx, sessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn().Err(err).Str("session_id", sessionID).Msg("generation interrupted; lease will expire")
			return nil
		}
		return err
	}
	p.log.Info().
		Str("session_id", sessionID).
		Str("status", string(res.Status)).
		Str("reason", string(res.Reason)).
		Dur("duration_ms", time.Since(start)).
		Msg("generation finished")
	return nil
}
