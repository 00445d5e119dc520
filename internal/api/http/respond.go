package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/rbac"
)

const maxBodyBytes = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// fail maps err to a status through apperr. Unclassified errors are logged
// and reported as a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err, http.StatusInternalServerError)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, envelope{Success: false, Error: apperr.Public(err)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body required")
		}
		return apperr.Invalid("invalid JSON body")
	}
	return nil
}

func accountID(r *http.Request) string {
	return rbac.SubjectFromContext(r.Context())
}

// reply writes data with status when err is nil and the mapped error otherwise.
func reply(w http.ResponseWriter, r *http.Request, status int, message string, data any, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, status, message, data)
}
