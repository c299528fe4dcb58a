package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/parque/internal/core"
)

// parseIntParam reads a positive integer query parameter. A missing value
// yields def; anything else that is not a positive integer is an error.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return def, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return 0, badRequest("el parámetro %q debe ser un entero positivo", name)
	}
	return i, nil
}

// parsePage reads page and size. Size is capped by core.
func parsePage(r *http.Request) (core.Page, error) {
	number, err := parseIntParam(r, "page", 1)
	if err != nil {
		return core.Page{}, err
	}
	size, err := parseIntParam(r, "size", core.DefaultPageSize)
	if err != nil {
		return core.Page{}, err
	}
	return core.Page{Number: number, Size: size}, nil
}

var recordStates = map[core.RecordState]bool{
	core.StateProcessing: true,
	core.StateValidated:  true,
	core.StateError:      true,
	core.StateDuplicate:  true,
	core.StateIncomplete: true,
}

func parseRecordState(r *http.Request) (core.RecordState, error) {
	val := core.RecordState(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("estado"))))
	if val == "" || recordStates[val] {
		return val, nil
	}
	return "", badRequest("estado de registro desconocido: %q", val)
}

var errorTypes = map[core.ErrorType]bool{
	core.ErrorParsing:       true,
	core.ErrorValidation:    true,
	core.ErrorNormalization: true,
	core.ErrorScoring:       true,
	core.ErrorDatabase:      true,
	core.ErrorBusinessRule:  true,
	core.ErrorSystem:        true,
}

// parseErrorFilter reads job_id, tipo, severidad, resuelto, page and size.
func parseErrorFilter(r *http.Request) (core.ErrorFilter, error) {
	q := r.URL.Query()
	f := core.ErrorFilter{JobID: strings.TrimSpace(q.Get("job_id"))}

	if t := core.ErrorType(strings.ToUpper(strings.TrimSpace(q.Get("tipo")))); t != "" {
		if !errorTypes[t] {
			return f, badRequest("tipo de error desconocido: %q", t)
		}
		f.Type = t
	}
	if sev := core.Severity(strings.ToUpper(strings.TrimSpace(q.Get("severidad")))); sev != "" {
		if !sev.Valid() {
			return f, badRequest("severidad desconocida: %q", sev)
		}
		f.Severity = sev
	}
	if v := strings.TrimSpace(q.Get("resuelto")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, badRequest("resuelto debe ser true o false")
		}
		f.Resolved = &b
	}

	page, err := parsePage(r)
	if err != nil {
		return f, err
	}
	f.Page = page
	return f, nil
}

// parseSince accepts an RFC 3339 timestamp or a look-back duration such as
// "24h". Empty means all time.
func parseSince(val string, now time.Time) (time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, badRequest("desde debe ser una fecha RFC 3339 o una duración como 24h")
}

// splitList splits a comma-separated form value, dropping blanks.
func splitList(val string) []string {
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
