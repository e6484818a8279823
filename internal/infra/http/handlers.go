package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/infra/logging"
	red "ai-transform-service/internal/infra/redis"
)

type apiError struct {
	Error string `json:"error"`
}

type artifactResp struct {
	ID            string              `json:"id"`
	StepID        string              `json:"step_id"`
	Ordinal       int                 `json:"ordinal"`
	ContentType   string              `json:"content_type"`
	QualityStatus model.QualityStatus `json:"quality_status"`
	QualityHint   string              `json:"quality_hint,omitempty"`
	Attempts      int                 `json:"attempts"`
	URL           string              `json:"url"`
	CreatedAt     time.Time           `json:"created_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// statusFor maps domain errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
	}
	writeError(w, code, http.StatusText(code))
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}
	ctx := logging.WithSessID(r.Context(), sid)

	if s.Limiter != nil && s.opts.SubmitLimit > 0 {
		ok, err := s.Limiter.Allow(ctx, red.SubmitKey(sid), s.opts.SubmitLimit, s.opts.SubmitWindow)
		if err != nil {
			logging.With(ctx, s.log).Warn().Err(err).Msg("rate limiter unavailable; allowing")
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "too many submissions")
			return
		}
	}

	if r.URL.Query().Get("async") == "true" {
		if s.Queue == nil {
			writeError(w, http.StatusNotImplemented, "async submission is not enabled")
			return
		}
		queued, err := s.Queue.Enqueue(sid)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sid, "queued": queued})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()
	res, err := s.Generation.Submit(ctx, sid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Status == model.SubmitBusy {
		code = http.StatusConflict
	}
	writeJSON(w, code, res)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	res, err := s.Generation.Status(r.Context(), sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	arts, err := s.Sessions.ListArtifacts(ctx, sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]artifactResp, 0, len(arts))
	for _, a := range arts {
		url, err := s.Blobs.SignedURL(ctx, a.Path, s.opts.URLTTL)
		if err != nil {
			s.fail(w, r, fmt.Errorf("sign %s: %w", a.Path, err))
			return
		}
		out = append(out, artifactResp{
			ID:            a.ID,
			StepID:        a.StepID,
			Ordinal:       a.Ordinal,
			ContentType:   a.ContentType,
			QualityStatus: a.QualityStatus,
			QualityHint:   a.QualityHint,
			Attempts:      a.Attempts,
			URL:           url,
			CreatedAt:     a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if err := s.Verifier.Verify(r.URL.Query().Get("token"), path); err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired link")
		return
	}
	data, ct, err := s.Blobs.Get(r.Context(), path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
