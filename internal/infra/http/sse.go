package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ai-transform-service/internal/domain/model"
)

// handleEvents streams progress as server-sent events until the job reaches a
// terminal event or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeError(w, http.StatusNotImplemented, "event streaming is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sid := sessionID(r)
	events, cancel := s.Events.Subscribe(sid)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// current state first, so late subscribers see where the job stands
	st, err := s.Generation.Status(r.Context(), sid)
	if err == nil {
		writeEvent(w, "status", st)
	}
	flusher.Flush()
	if err == nil && (st.Status == model.SubmitCompleted || st.Status == model.SubmitFailed) {
		return
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, string(ev.Type), ev)
			flusher.Flush()
			if ev.Type == model.EventJobCompleted || ev.Type == model.EventJobFailed {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
}
