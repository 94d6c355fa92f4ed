// Package executor runs one test job at a time against a local Godot
// project and records the outcome.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/parser"
)

// Registry receives job state changes as they happen, so API readers see
// the running transition before the command finishes.
type Registry interface {
	Update(job models.Job)
}

// Command is one runnable test invocation. ReportPath, when set, points at
// the machine-readable report the runner writes inside the artifact dir.
type Command struct {
	Args       []string
	ReportPath string
}

// CommandBuilder produces the invocation for one framework.
type CommandBuilder func(cfg *config.Config, job models.Job, artifactDir string) Command

// Executor turns queued jobs into terminal ones. It is driven by the
// single worker goroutine, one job at a time.
type Executor struct {
	cfg        *config.Config
	registry   Registry
	logger     *slog.Logger
	frameworks map[string]CommandBuilder
}

// New creates an executor with the built-in framework commands registered.
func New(cfg *config.Config, registry Registry, logger *slog.Logger) *Executor {
	e := &Executor{
		cfg:        cfg,
		registry:   registry,
		logger:     logger,
		frameworks: make(map[string]CommandBuilder),
	}
	e.RegisterFramework(models.FrameworkGdUnit4, buildGdUnit4Command)
	e.RegisterFramework(models.FrameworkGUT, buildGutCommand)
	return e
}

// RegisterFramework adds or replaces the command builder for a framework.
func (e *Executor) RegisterFramework(name string, build CommandBuilder) {
	e.frameworks[name] = build
}

// Execute runs the job to a terminal state and returns the final record.
// Failures are encoded in the job, never returned as an error. The running
// transition is published immediately; validation happens after it so the
// job history always shows the attempt.
func (e *Executor) Execute(ctx context.Context, job models.Job) models.Job {
	now := time.Now().UTC()
	job.Status = models.StatusRunning
	job.StartedAt = &now
	e.registry.Update(job)

	e.logger.Info("job started",
		slog.String("job_id", job.ID),
		slog.String("framework", job.Framework),
		slog.String("target", job.Target),
		slog.String("suite", job.Suite))

	if info, err := os.Stat(job.Target); err != nil || !info.IsDir() {
		return e.fail(job, fmt.Sprintf("target not found: %s", job.Target))
	}

	artifactDir := filepath.Join(e.cfg.ArtifactsDir, job.ID)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return e.fail(job, fmt.Sprintf("create artifact dir: %v", err))
	}

	build, ok := e.frameworks[job.Framework]
	if !ok {
		return e.fail(job, fmt.Sprintf("unsupported framework: %s", job.Framework))
	}
	cmd := build(e.cfg, job, artifactDir)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
	defer cancel()

	var buf bytes.Buffer
	run := exec.CommandContext(runCtx, cmd.Args[0], cmd.Args[1:]...)
	run.Dir = job.Target
	run.Stdout = &buf
	run.Stderr = &buf
	run.WaitDelay = 5 * time.Second

	runErr := run.Run()
	job.Output = buf.String()

	logPath := filepath.Join(artifactDir, "output.log")
	if err := os.WriteFile(logPath, buf.Bytes(), 0o644); err != nil {
		e.logger.Warn("write output log", slog.String("job_id", job.ID), slog.Any("error", err))
	} else {
		job.LogPath = logPath
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		job.Status = models.StatusTimeout
		job.ErrorMessage = fmt.Sprintf("test execution exceeded %ds timeout", job.TimeoutSeconds)
		return e.finish(job)
	}
	if ctx.Err() != nil {
		return e.fail(job, "execution interrupted by shutdown")
	}

	// A nonzero exit is normal for failing tests; only a command that
	// never started counts as an execution failure.
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return e.fail(job, fmt.Sprintf("start test command: %v", runErr))
	}

	summary := parser.Parse(job.Framework, job.Output, cmd.ReportPath)
	result := summary.Result
	job.Result = &result
	job.TestsRun = summary.TestsRun
	job.TestsPassed = summary.TestsPassed
	job.TestsFailed = summary.TestsFailed
	if cmd.ReportPath != "" {
		if _, err := os.Stat(cmd.ReportPath); err == nil {
			job.ReportPath = cmd.ReportPath
		}
	}
	job.Status = models.StatusComplete
	return e.finish(job)
}

func (e *Executor) fail(job models.Job, msg string) models.Job {
	job.Status = models.StatusFailed
	job.ErrorMessage = msg
	return e.finish(job)
}

func (e *Executor) finish(job models.Job) models.Job {
	now := time.Now().UTC()
	job.CompletedAt = &now
	e.registry.Update(job)

	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("status", job.Status),
		slog.Float64("duration_seconds", job.DurationSeconds()),
	}
	if job.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", job.ErrorMessage))
	}
	e.logger.Info("job finished", attrs...)
	return job
}

// GodotVersion probes the godot binary, returning "unknown" on any failure.
func GodotVersion(ctx context.Context, bin string) string {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, bin, "--version").Output()
	if err != nil {
		return "unknown"
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "unknown"
	}
	return v
}
