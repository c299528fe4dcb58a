package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/parque/internal/core"
)

// resolveRequest is the optional body of POST /api/errors/{errorID}/resolve.
type resolveRequest struct {
	Notes string `json:"notas"`
}

// maxResolveBody bounds the resolve request body.
const maxResolveBody = 16 << 10

func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	f, err := parseErrorFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.service.Errors(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

// handleErrorSummary aggregates the ledger; ?desde takes a timestamp or a
// look-back duration, ?top the number of recurrent errors listed.
func (s *Server) handleErrorSummary(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("desde"), time.Now())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	top, err := parseIntParam(r, "top", core.DefaultTopN)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sum, err := s.service.ErrorSummary(r.Context(), core.SummaryQuery{
		JobID: r.URL.Query().Get("job_id"),
		Since: since,
		TopN:  top,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

func (s *Server) handleResolveError(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxResolveBody))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, badRequest("cuerpo JSON inválido"))
		return
	}

	e, err := s.service.ResolveError(r.Context(), chi.URLParam(r, "errorID"), body.Notes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// handleHealth reports liveness, job slot usage and, when configured,
// backing service readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"estado":   "ok",
		"trabajos": s.service.Limiter(),
	}
	status := http.StatusOK
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			body["estado"] = "degradado"
			body["error"] = core.MapError(err).Message
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, r, status, body)
}
