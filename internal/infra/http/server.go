package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/domain/ports/repository"
	"ai-transform-service/internal/usecase"
)

// Enqueuer schedules an async generation run.
type Enqueuer interface {
	Enqueue(sessionID string) (bool, error)
}

// Subscriber streams progress events for one session.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan model.ProgressEvent, func())
}

// Limiter is a per-key fixed-window rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobVerifier validates signed download tokens.
type BlobVerifier interface {
	Verify(token, path string) error
}

type Deps struct {
	Generation usecase.GenerationUseCase
	Queue      Enqueuer // optional; async submits are rejected without it
	Sessions   repository.SessionRepository
	Blobs      adapter.BlobStore
	Verifier   BlobVerifier // optional; /blobs is not mounted without it
	Events     Subscriber   // optional
	Limiter    Limiter      // optional
	Log        *zerolog.Logger
}

type Options struct {
	Port          int
	APIKey        string
	SubmitTimeout time.Duration
	SubmitLimit   int
	SubmitWindow  time.Duration
	URLTTL        time.Duration
	Heartbeat     time.Duration
}

type Server struct {
	Deps
	opts   Options
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 5 * time.Minute
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = 15 * time.Minute
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	l := deps.Log.With().Str("component", "HTTPServer").Logger()
	return &Server{Deps: deps, opts: opts, log: &l}
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.Verifier != nil {
		r.Get("/blobs/*", s.handleBlob)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(s.opts.APIKey, s.log))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Get("/job", s.handleJob)
			r.Get("/artifacts", s.handleArtifacts)
			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.opts.Port).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
