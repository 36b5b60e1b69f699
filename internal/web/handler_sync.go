package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusResponse is the connectivity badge plus queue depths.
type statusResponse struct {
	Online           bool       `json:"online"`
	LastSyncTime     *time.Time `json:"lastSyncTime,omitempty"`
	PendingPhotos    int        `json:"pendingPhotos"`
	PendingCheckIns  int        `json:"pendingCheckIns"`
	UnsyncedTimeLogs int        `json:"unsyncedTimeLogs"`
	TimerRunning     bool       `json:"timerRunning"`
}

func (s *Server) status() statusResponse {
	conn := s.service.Status()
	resp := statusResponse{
		Online:       conn.Online,
		LastSyncTime: conn.LastSyncTime,
		TimerRunning: s.service.CurrentTimer().Running,
	}
	for _, p := range s.service.ListPhotos() {
		if !p.Synced {
			resp.PendingPhotos++
		}
	}
	for _, ci := range s.service.ListCheckIns() {
		if !ci.Synced {
			resp.PendingCheckIns++
		}
	}
	for _, l := range s.service.ListTimeLogs() {
		if !l.Synced {
			resp.UnsyncedTimeLogs++
		}
	}
	return resp
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Online == nil {
		s.writeError(w, r, badRequest("online required"))
		return
	}
	s.service.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync not configured"})
		return
	}
	run, err := s.syncer.Sync(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

const defaultRunLimit = 20

func (s *Server) handleListSyncRuns(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, r, badRequest("invalid limit"))
			return
		}
		limit = n
	}
	runs, err := s.syncer.Runs(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync not configured"})
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		s.writeError(w, r, badRequest("token required"))
		return
	}
	s.tokens.Set(token)
	s.logger.Info("bearer token updated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearAll(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
