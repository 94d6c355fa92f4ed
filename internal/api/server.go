// Package api exposes the coordination endpoints used by test agents and
// the management endpoints used by the dashboard.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/executor"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/queue"
	"github.com/yusufkaraaslan/lazy-bird/internal/store"
	"github.com/yusufkaraaslan/lazy-bird/internal/supervisor"
	"github.com/yusufkaraaslan/lazy-bird/internal/telemetry"
	"github.com/yusufkaraaslan/lazy-bird/internal/version"
	"github.com/yusufkaraaslan/lazy-bird/internal/worker"
)

// Rough estimate used for the wait hint at submit time: two minutes per
// queued job.
const estimatedSecondsPerJob = 120

// Server wires the HTTP surfaces over the queue, stores, and supervisor.
type Server struct {
	cfg      *config.Config
	queue    *queue.JobQueue
	worker   *worker.Worker
	projects *store.ConfigStore
	tasks    *store.TaskStore
	services *supervisor.Systemd
	logger   *slog.Logger
	started  time.Time

	godotOnce    sync.Once
	godotVersion string

	// githubAPI is swapped for a test server in unit tests.
	githubAPI string
}

// New constructs the API server around its collaborators.
func New(cfg *config.Config, q *queue.JobQueue, w *worker.Worker, projects *store.ConfigStore, tasks *store.TaskStore, services *supervisor.Systemd, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		queue:     q,
		worker:    w,
		projects:  projects,
		tasks:     tasks,
		services:  services,
		logger:    logger,
		started:   time.Now().UTC(),
		githubAPI: "https://api.github.com",
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/test/submit", s.handleSubmit)
	r.Get("/test/status/{jobID}", s.handleStatus)
	r.Get("/test/results/{jobID}", s.handleResults)
	r.Delete("/test/cancel/{jobID}", s.handleCancel)

	r.Get("/health", s.handleHealth)
	r.Get("/queue", s.handleQueueView)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Get("/{projectID}", s.handleGetProject)
			r.Put("/{projectID}", s.handleUpdateProject)
			r.Delete("/{projectID}", s.handleDeleteProject)
			r.Post("/{projectID}/enable", s.handleEnableProject)
			r.Post("/{projectID}/disable", s.handleDisableProject)
		})
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/stats", s.handleTaskStats)
			r.Get("/{taskID}", s.handleGetTask)
			r.Delete("/{taskID}", s.handleDeleteTask)
		})
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
			r.Get("/services/{name}", s.handleServiceStatus)
			r.Post("/services/{name}/{action}", s.handleServiceAction)
			r.Get("/config", s.handleGetSystemConfig)
			r.Put("/config", s.handleUpdateSystemConfig)
		})
		r.Route("/settings", func(r chi.Router) {
			r.Get("/token", s.handleGetToken)
			r.Put("/token", s.handleSetToken)
			r.Post("/token/test", s.handleTestToken)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type submitRequest struct {
	Target         string `json:"target"`
	Suite          string `json:"suite"`
	Framework      string `json:"framework"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	AgentID        string `json:"agent_id"`
	TaskID         int    `json:"task_id"`
	CallbackURL    string `json:"callback_url"`
	Priority       string `json:"priority"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	priority, err := normalizePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := models.Job{
		ID:             uuid.NewString(),
		Target:         req.Target,
		Suite:          req.Suite,
		Framework:      req.Framework,
		TimeoutSeconds: req.TimeoutSeconds,
		AgentID:        req.AgentID,
		TaskID:         req.TaskID,
		CallbackURL:    req.CallbackURL,
		Priority:       priority,
	}
	if job.Suite == "" {
		job.Suite = "all"
	}
	if job.Framework == "" {
		job.Framework = models.FrameworkGdUnit4
	}
	if job.TimeoutSeconds <= 0 {
		job.TimeoutSeconds = int(s.cfg.DefaultTimeout.Seconds())
	}

	job, err = s.queue.Submit(job)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			telemetry.JobsRejected.Inc()
			writeError(w, http.StatusServiceUnavailable, "queue is full")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	telemetry.JobsSubmitted.Inc()
	telemetry.QueueDepth.Set(float64(s.queue.Depth()))

	position := s.queue.Position(job.ID)
	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("agent_id", job.AgentID),
		slog.String("framework", job.Framework),
		slog.Int("position", position))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":                 job.ID,
		"status":                 job.Status,
		"queue_position":         position,
		"estimated_wait_seconds": position * estimatedSecondsPerJob,
	})
}

func normalizePriority(p string) (string, error) {
	switch norm := strings.ToLower(p); norm {
	case "":
		return models.PriorityNormal, nil
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh:
		return norm, nil
	default:
		return "", fmt.Errorf("unknown priority %q", p)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]any{
		"job_id":       job.ID,
		"status":       job.Status,
		"submitted_at": job.SubmittedAt,
	}
	switch job.Status {
	case models.StatusQueued:
		resp["queue_position"] = s.queue.Position(job.ID)
	case models.StatusRunning:
		resp["started_at"] = job.StartedAt
		resp["timeout_seconds"] = job.TimeoutSeconds
		if job.StartedAt != nil {
			resp["elapsed_seconds"] = int(time.Since(*job.StartedAt).Seconds())
		}
	default:
		resp["result"] = job.Result
		resp["started_at"] = job.StartedAt
		resp["completed_at"] = job.CompletedAt
		resp["tests_run"] = job.TestsRun
		resp["tests_passed"] = job.TestsPassed
		resp["tests_failed"] = job.TestsFailed
		if job.StartedAt != nil && job.CompletedAt != nil {
			resp["duration_seconds"] = int(job.DurationSeconds())
		}
		if job.LogPath != "" {
			resp["artifacts"] = artifactsFor(job)
		}
		if job.ErrorMessage != "" {
			resp["error_message"] = job.ErrorMessage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Terminal() {
		writeError(w, http.StatusBadRequest, "job not finished")
		return
	}

	resp := map[string]any{
		"job_id": job.ID,
		"result": job.Result,
		"summary": map[string]int{
			"total":  job.TestsRun,
			"passed": job.TestsPassed,
			"failed": job.TestsFailed,
		},
		"output": job.Output,
	}
	if job.LogPath != "" {
		resp["artifacts"] = artifactsFor(job)
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func artifactsFor(job models.Job) map[string]string {
	artifacts := map[string]string{"log": job.LogPath}
	if job.ReportPath != "" {
		artifacts["junit"] = job.ReportPath
	}
	return artifacts
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Cancel(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusBadRequest, "job not cancellable")
		return
	}

	telemetry.JobsCancelled.Inc()
	telemetry.QueueDepth.Set(float64(s.queue.Depth()))
	s.logger.Info("job cancelled", slog.String("job_id", job.ID))

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":       job.ID,
		"status":       job.Status,
		"cancelled_at": job.CompletedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// The version probe spawns godot, so its result is kept for the
	// lifetime of the process.
	s.godotOnce.Do(func() {
		s.godotVersion = executor.GodotVersion(r.Context(), s.cfg.GodotBin)
	})

	var active any
	if job, ok := s.queue.ActiveJob(); ok {
		active = job.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "healthy",
		"service":              "lazy-bird-server",
		"version":              version.Version,
		"godot_version":        s.godotVersion,
		"uptime_seconds":       int(time.Since(s.started).Seconds()),
		"queue_depth":          s.queue.Depth(),
		"active_job":           active,
		"total_jobs_processed": s.worker.Processed(),
	})
}

func (s *Server) handleQueueView(w http.ResponseWriter, r *http.Request) {
	var active any
	if job, ok := s.queue.ActiveJob(); ok {
		entry := map[string]any{
			"job_id":     job.ID,
			"agent_id":   job.AgentID,
			"task_id":    job.TaskID,
			"started_at": job.StartedAt,
		}
		if job.StartedAt != nil {
			entry["elapsed_seconds"] = int(time.Since(*job.StartedAt).Seconds())
		}
		active = entry
	}

	queued := s.queue.Snapshot()
	items := make([]map[string]any, 0, len(queued))
	for i, job := range queued {
		items = append(items, map[string]any{
			"job_id":       job.ID,
			"agent_id":     job.AgentID,
			"task_id":      job.TaskID,
			"position":     i + 1,
			"submitted_at": job.SubmittedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active":       active,
		"queued":       items,
		"total_queued": len(items),
	})
}
