package web

// errors.go turns errors into JSON responses.
//
// Every failure is logged with its technical detail and the request id,
// then mapped through core.MapError so clients get a Spanish message, a
// suggested action and a stable support code.

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/logging"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message   string `json:"mensaje"`
	Action    string `json:"accion,omitempty"`
	Code      string `json:"codigo"`
	RequestID string `json:"request_id,omitempty"`
}

// requestError is malformed query, path or form input. Its text goes to
// the client as is.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrJobRunning), errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyFile), errors.Is(err, core.ErrProcessorColumnMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoFile), errors.As(err, new(*requestError)):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		msg = core.UserMessage{Message: reqErr.msg, Action: "Revisar los parámetros de la solicitud", Code: "REQ001"}
	}

	logger := logging.WithRequest(r.Context(), s.log)
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, r, status, ErrorResponse{
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
