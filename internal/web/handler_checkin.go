package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/roofmanager/fieldsync/internal/geo"
	"github.com/roofmanager/fieldsync/internal/service"
)

// checkInRequest carries either a fix or the device's geolocation error code.
// Coordinates are pointers so a missing field is not read as 0.
type checkInRequest struct {
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
	ErrorCode  int       `json:"errorCode,omitempty"`
}

func (req checkInRequest) position() (geo.Position, error) {
	if req.Latitude == nil || req.Longitude == nil {
		return geo.Position{}, badRequest("latitude and longitude required")
	}
	return geo.Position{
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Accuracy:   req.Accuracy,
		CapturedAt: req.CapturedAt,
	}, nil
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req checkInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ErrorCode != 0 {
		err := geo.FromCode(req.ErrorCode)
		s.logger.Warn("device location failed", "job_id", jobID, "code", req.ErrorCode)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Message: geo.Message(err)})
		return
	}

	pos, err := req.position()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ci, err := s.service.CheckIn(r.Context(), jobID, pos)
	if errors.Is(err, service.ErrAlreadyCheckedIn) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"checkIn": ci,
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ci)
}

type checkedInResponse struct {
	CheckedIn bool `json:"checkedIn"`
	CheckIn   any  `json:"checkIn,omitempty"`
}

func (s *Server) handleCheckedInToday(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := s.service.GetJob(jobID); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := checkedInResponse{}
	if ci := s.service.CheckedInToday(jobID); ci != nil {
		resp.CheckedIn = true
		resp.CheckIn = ci
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCheckIns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListCheckIns())
}

func (s *Server) handleMarkCheckInSynced(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkCheckInSynced(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGeoOptions tells the client how to ask the device for a fix.
func (s *Server) handleGeoOptions(w http.ResponseWriter, r *http.Request) {
	opts := s.service.GeoOptions()
	writeJSON(w, http.StatusOK, map[string]any{
		"enableHighAccuracy": opts.HighAccuracy,
		"timeout":            opts.Timeout.Milliseconds(),
		"maximumAge":         opts.MaxAge.Milliseconds(),
	})
}
