package web

import "net/http"

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	log, err := s.service.StartTimer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

// handleStopTimer answers 204 when no timer was running.
func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	log, err := s.service.StopTimer(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if log == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.CurrentTimer())
}

func (s *Server) handleListTimeLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListTimeLogs())
}

func (s *Server) handleMarkTimeLogsSynced(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.MarkAllTimeLogsSynced(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
