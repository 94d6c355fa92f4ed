package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/store"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var project models.Project
	if err := json.NewDecoder(r.Body).Decode(&project); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.projects.AddProject(project); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.logger.Info("project added", slog.String("project_id", project.ID))
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetProject(chi.URLParam(r, "projectID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleUpdateProject applies a partial update: fields absent from the body
// keep their current values. The project ID cannot change.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	current, err := s.projects.GetProject(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated := current
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if updated.ID != id {
		writeError(w, http.StatusBadRequest, "project id cannot be changed")
		return
	}

	if err := s.projects.UpdateProject(updated); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.logger.Info("project updated", slog.String("project_id", id))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	if err := s.projects.DeleteProject(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("project removed", slog.String("project_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableProject(w http.ResponseWriter, r *http.Request) {
	s.setProjectEnabled(w, r, true)
}

func (s *Server) handleDisableProject(w http.ResponseWriter, r *http.Request) {
	s.setProjectEnabled(w, r, false)
}

func (s *Server) setProjectEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := chi.URLParam(r, "projectID")
	project, err := s.projects.SetProjectEnabled(id, enabled)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.logger.Info("project "+state, slog.String("project_id", id))
	writeJSON(w, http.StatusOK, project)
}
