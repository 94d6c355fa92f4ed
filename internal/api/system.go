package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yusufkaraaslan/lazy-bird/internal/supervisor"
	"github.com/yusufkaraaslan/lazy-bird/internal/sysinfo"
)

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	system, err := s.projects.System()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services":  s.services.StatusAll(r.Context()),
		"resources": sysinfo.Sample(r.Context()),
		"config": map[string]any{
			"phase":          system.Phase,
			"projects_count": len(projects),
		},
	})
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Status(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, supervisor.ErrUnknownService) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	action := chi.URLParam(r, "action")

	var err error
	var done string
	switch action {
	case "start":
		err = s.services.Start(r.Context(), name)
		done = "started"
	case "stop":
		err = s.services.Stop(r.Context(), name)
		done = "stopped"
	case "restart":
		err = s.services.Restart(r.Context(), name)
		done = "restarted"
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+action)
		return
	}
	if err != nil {
		if errors.Is(err, supervisor.ErrUnknownService) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("service action",
		slog.String("service", name),
		slog.String("action", action))

	status, _ := s.services.Status(r.Context(), name)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Service " + name + " " + done,
		"status":  status.Status,
	})
}

func (s *Server) handleGetSystemConfig(w http.ResponseWriter, r *http.Request) {
	system, err := s.projects.System()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, system)
}

// handleUpdateSystemConfig applies a partial update over the stored
// settings, the same way project updates work.
func (s *Server) handleUpdateSystemConfig(w http.ResponseWriter, r *http.Request) {
	system, err := s.projects.System()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&system); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.projects.UpdateSystem(system); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("system config updated")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Configuration updated",
		"config":  system,
	})
}
