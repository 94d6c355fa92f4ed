package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/queue"
	"github.com/yusufkaraaslan/lazy-bird/internal/store"
	"github.com/yusufkaraaslan/lazy-bird/internal/supervisor"
	"github.com/yusufkaraaslan/lazy-bird/internal/worker"
)

type fixture struct {
	server *Server
	router http.Handler
	cfg    *config.Config
	queue  *queue.JobQueue
	tasks  *store.TaskStore
	runner *stubRunner
}

type stubRunner struct {
	responses map[string]stubResponse
	calls     []string
}

type stubResponse struct {
	out  string
	code int
	err  error
}

func (s *stubRunner) Run(ctx context.Context, args ...string) (string, int, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, key)
	if r, ok := s.responses[key]; ok {
		return r.out, r.code, r.err
	}
	return "", 0, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Host:            "127.0.0.1",
		Port:            5000,
		ArtifactsDir:    filepath.Join(dir, "tests"),
		GodotBin:        filepath.Join(dir, "no-godot-here"),
		MaxQueueSize:    3,
		DefaultTimeout:  300 * time.Second,
		DequeueWait:     10 * time.Millisecond,
		CallbackTimeout: time.Second,
		ConfigPath:      filepath.Join(dir, "config.yml"),
		QueueDir:        filepath.Join(dir, "queue"),
		DataDir:         filepath.Join(dir, "data"),
		SecretsDir:      filepath.Join(dir, "secrets"),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(cfg.MaxQueueSize)
	w := worker.New(cfg, q, nil, logger)
	projects := store.NewConfigStore(cfg.ConfigPath)
	tasks := store.NewTaskStore(cfg.QueueDir)
	runner := &stubRunner{responses: map[string]stubResponse{}}
	services := supervisor.NewWithRunner(runner)

	srv := New(cfg, q, w, projects, tasks, services, logger)
	return &fixture{
		server: srv,
		router: srv.Router(),
		cfg:    cfg,
		queue:  q,
		tasks:  tasks,
		runner: runner,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (f *fixture) submit(t *testing.T, body map[string]any) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/test/submit", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit returned %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := decode(t, rec)["job_id"].(string)
	if id == "" {
		t.Fatalf("no job_id in response: %s", rec.Body.String())
	}
	return id
}

func TestSubmitAppliesDefaults(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/test/submit", map[string]any{
		"target":   "/home/dev/projects/shooter",
		"agent_id": "agent-1",
		"task_id":  42,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)
	if resp["status"] != models.StatusQueued {
		t.Fatalf("expected queued, got %v", resp["status"])
	}
	if resp["queue_position"] != float64(1) {
		t.Fatalf("expected position 1, got %v", resp["queue_position"])
	}
	if resp["estimated_wait_seconds"] != float64(120) {
		t.Fatalf("expected 120s estimate, got %v", resp["estimated_wait_seconds"])
	}

	job, ok := f.queue.Get(resp["job_id"].(string))
	if !ok {
		t.Fatalf("job not in queue")
	}
	if job.Suite != "all" || job.Framework != models.FrameworkGdUnit4 {
		t.Fatalf("defaults not applied: %+v", job)
	}
	if job.TimeoutSeconds != 300 {
		t.Fatalf("expected default timeout, got %d", job.TimeoutSeconds)
	}
	if job.Priority != models.PriorityNormal {
		t.Fatalf("expected normal priority, got %s", job.Priority)
	}
	if job.AgentID != "agent-1" || job.TaskID != 42 {
		t.Fatalf("agent fields lost: %+v", job)
	}

	// A second submission queues behind the first.
	rec = f.do(t, http.MethodPost, "/test/submit", map[string]any{"target": "/p2"})
	resp = decode(t, rec)
	if resp["queue_position"] != float64(2) || resp["estimated_wait_seconds"] != float64(240) {
		t.Fatalf("expected position 2 with 240s estimate, got %v", resp)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/test/submit", map[string]any{"suite": "all"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing target, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"]; msg != "target is required" {
		t.Fatalf("unexpected error: %v", msg)
	}

	req := httptest.NewRequest(http.MethodPost, "/test/submit", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/test/submit", map[string]any{"target": "/p", "priority": "urgent"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad priority, got %d", rec.Code)
	}
	if msg, _ := decode(t, rec)["error"].(string); !strings.Contains(msg, "unknown priority") {
		t.Fatalf("unexpected error: %v", msg)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < f.cfg.MaxQueueSize; i++ {
		f.submit(t, map[string]any{"target": "/p"})
	}

	rec := f.do(t, http.MethodPost, "/test/submit", map[string]any{"target": "/p"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"]; msg != "queue is full" {
		t.Fatalf("unexpected error: %v", msg)
	}
}

func TestStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, map[string]any{"target": "/p", "timeout_seconds": 120})

	rec := f.do(t, http.MethodGet, "/test/status/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["status"] != models.StatusQueued || resp["queue_position"] != float64(1) {
		t.Fatalf("unexpected queued shape: %v", resp)
	}
	if _, ok := resp["result"]; ok {
		t.Fatalf("queued status must not carry a result")
	}

	// Worker picks the job up and the executor flips it to running.
	job, ok := f.queue.Dequeue(time.Second)
	if !ok {
		t.Fatalf("dequeue failed")
	}
	started := time.Now().UTC().Add(-3 * time.Second)
	job.Status = models.StatusRunning
	job.StartedAt = &started
	f.queue.Update(job)

	resp = decode(t, f.do(t, http.MethodGet, "/test/status/"+id, nil))
	if resp["status"] != models.StatusRunning {
		t.Fatalf("expected running, got %v", resp["status"])
	}
	if resp["timeout_seconds"] != float64(120) {
		t.Fatalf("expected timeout in running shape, got %v", resp["timeout_seconds"])
	}
	elapsed, ok := resp["elapsed_seconds"].(float64)
	if !ok || elapsed < 3 {
		t.Fatalf("expected elapsed >= 3s, got %v", resp["elapsed_seconds"])
	}
	if _, ok := resp["queue_position"]; ok {
		t.Fatalf("running status must not carry a queue position")
	}

	// Finished.
	completed := started.Add(5 * time.Second)
	result := models.ResultPassed
	job.Status = models.StatusComplete
	job.CompletedAt = &completed
	job.Result = &result
	job.TestsRun = 3
	job.TestsPassed = 2
	job.TestsFailed = 1
	job.LogPath = "/art/" + id + "/output.log"
	job.ReportPath = "/art/" + id + "/results.xml"
	f.queue.Update(job)

	resp = decode(t, f.do(t, http.MethodGet, "/test/status/"+id, nil))
	if resp["status"] != models.StatusComplete || resp["result"] != models.ResultPassed {
		t.Fatalf("unexpected terminal shape: %v", resp)
	}
	if resp["tests_run"] != float64(3) || resp["tests_failed"] != float64(1) {
		t.Fatalf("counts missing: %v", resp)
	}
	if resp["duration_seconds"] != float64(5) {
		t.Fatalf("expected 5s duration, got %v", resp["duration_seconds"])
	}
	artifacts, ok := resp["artifacts"].(map[string]any)
	if !ok || artifacts["log"] == "" || artifacts["junit"] == "" {
		t.Fatalf("artifacts missing: %v", resp["artifacts"])
	}
	if _, ok := resp["error_message"]; ok {
		t.Fatalf("clean run must not carry an error message")
	}
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/test/status/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelFlow(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, map[string]any{"target": "/p"})
	second := f.submit(t, map[string]any{"target": "/p"})

	// The first job is already picked up.
	if _, ok := f.queue.Dequeue(time.Second); !ok {
		t.Fatalf("dequeue failed")
	}

	rec := f.do(t, http.MethodDelete, "/test/cancel/"+first, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected active job to be uncancellable, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/test/cancel/"+second, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["status"] != models.StatusCancelled || resp["cancelled_at"] == nil {
		t.Fatalf("unexpected cancel response: %v", resp)
	}

	rec = f.do(t, http.MethodDelete, "/test/cancel/"+second, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected repeat cancel to fail, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/test/cancel/unknown", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown cancel to fail, got %d", rec.Code)
	}

	// The cancelled job reads back gracefully.
	resp = decode(t, f.do(t, http.MethodGet, "/test/status/"+second, nil))
	if resp["status"] != models.StatusCancelled {
		t.Fatalf("expected cancelled status, got %v", resp["status"])
	}
	if resp["result"] != nil {
		t.Fatalf("cancelled job has no result, got %v", resp["result"])
	}
	if resp["completed_at"] == nil {
		t.Fatalf("expected completion stamp on cancelled job")
	}
}

func TestResults(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, map[string]any{"target": "/p"})

	rec := f.do(t, http.MethodGet, "/test/results/"+id, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unfinished job, got %d", rec.Code)
	}
	if msg := decode(t, rec)["error"]; msg != "job not finished" {
		t.Fatalf("unexpected error: %v", msg)
	}

	job, _ := f.queue.Dequeue(time.Second)
	now := time.Now().UTC()
	result := models.ResultFailed
	job.Status = models.StatusComplete
	job.StartedAt = &now
	job.CompletedAt = &now
	job.Result = &result
	job.TestsRun = 4
	job.TestsPassed = 3
	job.TestsFailed = 1
	job.Output = "4 tests, 3 passed, 1 failed"
	job.LogPath = "/art/out.log"
	f.queue.Update(job)

	rec = f.do(t, http.MethodGet, "/test/results/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["result"] != models.ResultFailed {
		t.Fatalf("unexpected result: %v", resp["result"])
	}
	summary, ok := resp["summary"].(map[string]any)
	if !ok || summary["total"] != float64(4) || summary["passed"] != float64(3) || summary["failed"] != float64(1) {
		t.Fatalf("unexpected summary: %v", resp["summary"])
	}
	if resp["output"] != job.Output {
		t.Fatalf("output missing: %v", resp["output"])
	}
	artifacts, _ := resp["artifacts"].(map[string]any)
	if artifacts["log"] != job.LogPath {
		t.Fatalf("unexpected artifacts: %v", resp["artifacts"])
	}
	if _, ok := artifacts["junit"]; ok {
		t.Fatalf("no report was written, junit must be absent: %v", artifacts)
	}

	rec = f.do(t, http.MethodGet, "/test/results/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestResultsForTimedOutJob(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, map[string]any{"target": "/p"})

	job, _ := f.queue.Dequeue(time.Second)
	now := time.Now().UTC()
	job.Status = models.StatusTimeout
	job.StartedAt = &now
	job.CompletedAt = &now
	job.ErrorMessage = "test execution exceeded 300s timeout"
	f.queue.Update(job)

	rec := f.do(t, http.MethodGet, "/test/results/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("timed out jobs still expose results, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["result"] != nil {
		t.Fatalf("expected null result, got %v", resp["result"])
	}
	if msg, _ := resp["error_message"].(string); !strings.Contains(msg, "timeout") {
		t.Fatalf("expected error message, got %v", resp["error_message"])
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.submit(t, map[string]any{"target": "/p"})

	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["status"] != "healthy" || resp["service"] != "lazy-bird-server" {
		t.Fatalf("unexpected identity: %v", resp)
	}
	// The probe binary does not exist in tests.
	if resp["godot_version"] != "unknown" {
		t.Fatalf("expected unknown godot version, got %v", resp["godot_version"])
	}
	if resp["queue_depth"] != float64(1) {
		t.Fatalf("expected depth 1, got %v", resp["queue_depth"])
	}
	if resp["active_job"] != nil {
		t.Fatalf("expected no active job, got %v", resp["active_job"])
	}
	if resp["total_jobs_processed"] != float64(0) {
		t.Fatalf("expected zero processed, got %v", resp["total_jobs_processed"])
	}
	if _, ok := resp["uptime_seconds"]; !ok {
		t.Fatalf("expected uptime: %v", resp)
	}
}

func TestQueueView(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, map[string]any{"target": "/p", "agent_id": "agent-1", "task_id": 7})
	f.submit(t, map[string]any{"target": "/p"})
	f.submit(t, map[string]any{"target": "/p"})

	job, _ := f.queue.Dequeue(time.Second)
	started := time.Now().UTC().Add(-2 * time.Second)
	job.Status = models.StatusRunning
	job.StartedAt = &started
	f.queue.Update(job)

	rec := f.do(t, http.MethodGet, "/queue", nil)
	resp := decode(t, rec)

	active, ok := resp["active"].(map[string]any)
	if !ok {
		t.Fatalf("expected active entry, got %v", resp["active"])
	}
	if active["job_id"] != first || active["agent_id"] != "agent-1" || active["task_id"] != float64(7) {
		t.Fatalf("unexpected active entry: %v", active)
	}
	if elapsed, ok := active["elapsed_seconds"].(float64); !ok || elapsed < 2 {
		t.Fatalf("expected elapsed >= 2, got %v", active["elapsed_seconds"])
	}

	queued, ok := resp["queued"].([]any)
	if !ok || len(queued) != 2 {
		t.Fatalf("expected 2 queued, got %v", resp["queued"])
	}
	firstQueued := queued[0].(map[string]any)
	if firstQueued["position"] != float64(1) {
		t.Fatalf("expected position 1, got %v", firstQueued["position"])
	}
	if resp["total_queued"] != float64(2) {
		t.Fatalf("expected total 2, got %v", resp["total_queued"])
	}
}

func TestQueueViewEmpty(t *testing.T) {
	f := newFixture(t)
	resp := decode(t, f.do(t, http.MethodGet, "/queue", nil))
	if resp["active"] != nil {
		t.Fatalf("expected null active, got %v", resp["active"])
	}
	if resp["total_queued"] != float64(0) {
		t.Fatalf("expected empty queue, got %v", resp["total_queued"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.submit(t, map[string]any{"target": "/p"})

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lazybird_jobs_submitted_total") {
		t.Fatalf("expected job counter in metrics output")
	}
}
