package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/safepass/internal/common"
)

const maxBodyBytes = 1 << 20

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK writes {"success":true,"message":msg} plus extra fields.
func writeOK(w http.ResponseWriter, status int, msg string, extra envelope) {
	body := envelope{"success": true, "message": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{common.ErrorInvalidInput, http.StatusBadRequest, "invalid_input"},
	{common.ErrorInvalidState, http.StatusBadRequest, "invalid_state"},
	{common.ErrorConflict, http.StatusConflict, "conflict"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrorForbidden, http.StatusForbidden, "forbidden"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
	{common.ErrorGone, http.StatusGone, "expired"},
	{common.ErrorDependency, http.StatusBadGateway, "dependency_failure"},
}

// classify maps a service error to its HTTP status and error code.
func classify(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError renders err. Server-side failures get a generic message and the
// cause goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, envelope{"success": false, "code": code, "message": msg})
}

// decode reads a JSON body into dst. Empty, oversized or malformed bodies are
// invalid input.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", common.ErrorInvalidInput)
		}
		return fmt.Errorf("%w: malformed request body", common.ErrorInvalidInput)
	}
	return nil
}
