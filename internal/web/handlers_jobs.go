package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/logging"
)

// jobAccepted is the body of a 202 from POST /api/jobs.
type jobAccepted struct {
	ID        string `json:"job_id"`
	StatusURL string `json:"estado_url"`
	EventsURL string `json:"eventos_url"`
}

// handleCreateJob accepts a multipart upload: file plus optional audit_id,
// audit_cycle, audit_version and omitir_reglas (comma-separated rule ids).
// With ?wait=true the job runs inside the request and the final status is
// returned; otherwise the job is queued and 202 points at its status.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrFileTooLarge, err))
			return
		}
		s.respondError(w, r, badRequest("formulario multipart inválido"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.respondError(w, r, core.ErrNoFile)
			return
		}
		s.respondError(w, r, badRequest("no se pudo leer el archivo"))
		return
	}
	defer file.Close()

	if header.Size > s.opts.MaxUploadSize {
		s.respondError(w, r, fmt.Errorf("%w: %s has %d bytes", core.ErrFileTooLarge, header.Filename, header.Size))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	req := core.JobRequest{
		FileName: header.Filename,
		Data:     data,
		Meta: core.JobMeta{
			AuditID:      r.FormValue("audit_id"),
			AuditCycle:   r.FormValue("audit_cycle"),
			AuditVersion: r.FormValue("audit_version"),
		},
		Skip: splitList(r.FormValue("omitir_reglas")),
	}
	ctx := WithRequestMetadata(r.Context(), r)

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		st, err := s.service.Run(ctx, req)
		if st.ID == "" {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, st)
		return
	}

	id, err := s.service.Start(ctx, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.ForJob(r.Context(), id, header.Filename).Info("job accepted", "size_bytes", len(data))

	statusURL := "/api/jobs/" + id
	w.Header().Set("Location", statusURL)
	writeJSON(w, r, http.StatusAccepted, jobAccepted{
		ID:        id,
		StatusURL: statusURL,
		EventsURL: statusURL + "/events",
	})
}

// handleListJobs lists retained jobs, newest first, without their logs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	state := core.JobState(r.URL.Query().Get("estado"))
	jobs := s.service.Jobs()
	out := make([]core.JobStatus, 0, len(jobs))
	for _, st := range jobs {
		if state != "" && st.State != state {
			continue
		}
		st.Log = nil
		out = append(out, st)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"jobs": out, "total": len(out)})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleJobEvents streams status snapshots as Server-Sent Events until the
// job reaches a terminal state, ending with a "complete" event.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	updates, err := s.service.Subscribe(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut long jobs short.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, st core.JobStatus) error {
		st.Log = nil
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				// Intermediate snapshots may be dropped; the final one is read
				// back from the job.
				final, err := s.service.Status(id)
				if err == nil {
					_ = send("complete", final)
				}
				return
			}
			if err := send("progress", st); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.service.Cancel(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	st, err := s.service.Status(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleJobRecords pages through a finished job's records, optionally
// narrowed by ?estado.
func (s *Server) handleJobRecords(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	state, err := parseRecordState(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.service.Records(chi.URLParam(r, "jobID"), page, state)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleJobMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.Mapping(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"columnas":   m,
		"mapeadas":   m.Mapped(),
		"sin_mapear": m.Unmapped(),
	})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Report(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleJobValidation(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Validation(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleListRules lists the business rules jobs run with, usage counters
// included.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.service.Rules().All()
	writeJSON(w, r, http.StatusOK, map[string]any{"reglas": rules, "total": len(rules)})
}
