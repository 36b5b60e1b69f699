package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roofmanager/fieldsync/internal/geo"
	"github.com/roofmanager/fieldsync/internal/offline"
	"github.com/roofmanager/fieldsync/internal/photostore"
	"github.com/roofmanager/fieldsync/internal/service"
	"github.com/roofmanager/fieldsync/internal/syncer"
	"github.com/roofmanager/fieldsync/internal/upstream"
)

const maxJSONBody = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, offline.ErrJobNotFound),
		errors.Is(err, offline.ErrPhotoNotFound),
		errors.Is(err, offline.ErrCheckInNotFound),
		errors.Is(err, offline.ErrTimeLogNotFound),
		errors.Is(err, photostore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, geo.ErrInvalidPosition),
		errors.Is(err, geo.ErrStalePosition),
		errors.Is(err, geo.ErrPermissionDenied),
		errors.Is(err, geo.ErrPositionUnavailable),
		errors.Is(err, geo.ErrTimeout),
		errors.Is(err, geo.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, offline.ErrTimerRunning),
		errors.Is(err, offline.ErrJobExists),
		errors.Is(err, service.ErrAlreadyCheckedIn),
		errors.Is(err, syncer.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, upstream.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, syncer.ErrOffline),
		errors.Is(err, upstream.ErrUnreachable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server-side failures are logged
// and their details withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	if status == http.StatusBadRequest && !errors.Is(err, errBadRequest) {
		resp.Message = geo.Message(err)
	}
	writeJSON(w, status, resp)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
