package web

import (
	"net/http"
	"strings"

	"github.com/roofmanager/fieldsync/internal/domain"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJob(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleReplaceJobs(w http.ResponseWriter, r *http.Request) {
	var jobs []domain.Job
	if err := decodeJSON(w, r, &jobs); err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range jobs {
		if err := validateJob(&jobs[i]); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.service.ReplaceJobs(r.Context(), jobs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListJobs())
}

func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	var job domain.Job
	if err := decodeJSON(w, r, &job); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateJob(&job); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.AddJob(r.Context(), job); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func validateJob(job *domain.Job) error {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return badRequest("job id required")
	}
	if job.Assignments == nil {
		job.Assignments = []domain.Assignment{}
	}
	return nil
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var patch domain.JobPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.service.UpdateJob(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSelectJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.SelectJob(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.SelectedJob())
}

func (s *Server) handleSelectedJob(w http.ResponseWriter, r *http.Request) {
	job := s.service.SelectedJob()
	if job == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no job selected"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.service.SelectJob(""); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
