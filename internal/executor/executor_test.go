package executor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

type recordingRegistry struct {
	mu      sync.Mutex
	updates []models.Job
}

func (r *recordingRegistry) Update(job models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, job)
}

func (r *recordingRegistry) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.updates))
	for i, j := range r.updates {
		out[i] = j.Status
	}
	return out
}

func newTestExecutor(t *testing.T) (*Executor, *recordingRegistry, *config.Config) {
	t.Helper()
	cfg := &config.Config{ArtifactsDir: t.TempDir(), GodotBin: "godot"}
	reg := &recordingRegistry{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, reg, logger), reg, cfg
}

func TestExecuteMissingTarget(t *testing.T) {
	exec, reg, cfg := newTestExecutor(t)

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j1",
		Target:         filepath.Join(t.TempDir(), "missing"),
		Framework:      models.FrameworkGdUnit4,
		TimeoutSeconds: 30,
	})

	if job.Status != models.StatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "target not found") {
		t.Fatalf("unexpected error message: %s", job.ErrorMessage)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("expected both timestamps on a failed job")
	}
	if _, err := os.Stat(filepath.Join(cfg.ArtifactsDir, "j1")); !os.IsNotExist(err) {
		t.Fatalf("no artifact dir should exist for a rejected target")
	}

	got := reg.statuses()
	if len(got) != 2 || got[0] != models.StatusRunning || got[1] != models.StatusFailed {
		t.Fatalf("expected running then failed updates, got %v", got)
	}
}

func TestExecuteUnsupportedFramework(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j2",
		Target:         t.TempDir(),
		Framework:      "made-up",
		TimeoutSeconds: 30,
	})

	if job.Status != models.StatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "unsupported framework") {
		t.Fatalf("unexpected error message: %s", job.ErrorMessage)
	}
}

func TestExecuteSuccess(t *testing.T) {
	exec, reg, cfg := newTestExecutor(t)
	exec.RegisterFramework("echo", func(cfg *config.Config, job models.Job, artifactDir string) Command {
		return Command{Args: []string{"sh", "-c", `echo "Tests: 3, Passed: 3, Failed: 0"`}}
	})

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j3",
		Target:         t.TempDir(),
		Framework:      "echo",
		TimeoutSeconds: 30,
	})

	if job.Status != models.StatusComplete {
		t.Fatalf("expected complete status, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.Result == nil || *job.Result != models.ResultPassed {
		t.Fatalf("expected passed result, got %v", job.Result)
	}
	if job.TestsRun != 3 || job.TestsPassed != 3 || job.TestsFailed != 0 {
		t.Fatalf("expected 3/3/0, got %d/%d/%d", job.TestsRun, job.TestsPassed, job.TestsFailed)
	}
	if !strings.Contains(job.Output, "Tests: 3") {
		t.Fatalf("expected captured output, got %q", job.Output)
	}

	data, err := os.ReadFile(filepath.Join(cfg.ArtifactsDir, "j3", "output.log"))
	if err != nil {
		t.Fatalf("output log not written: %v", err)
	}
	if !strings.Contains(string(data), "Tests: 3") {
		t.Fatalf("log file missing output, got %q", string(data))
	}
	if job.LogPath == "" {
		t.Fatalf("expected log path on job")
	}

	got := reg.statuses()
	if len(got) != 2 || got[0] != models.StatusRunning || got[1] != models.StatusComplete {
		t.Fatalf("expected running then complete updates, got %v", got)
	}
}

func TestExecuteParsesReport(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	exec.RegisterFramework("fake-junit", func(cfg *config.Config, job models.Job, artifactDir string) Command {
		report := filepath.Join(artifactDir, "results.xml")
		script := `printf '<testsuite tests="2" failures="1" errors="0"/>' > ` + report
		return Command{Args: []string{"sh", "-c", script}, ReportPath: report}
	})

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j4",
		Target:         t.TempDir(),
		Framework:      "fake-junit",
		TimeoutSeconds: 30,
	})

	// Failing tests still run to completion; the result carries the outcome.
	if job.Status != models.StatusComplete {
		t.Fatalf("expected complete status, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.Result == nil || *job.Result != models.ResultFailed {
		t.Fatalf("expected failed result, got %v", job.Result)
	}
	if job.TestsRun != 2 || job.TestsPassed != 1 || job.TestsFailed != 1 {
		t.Fatalf("expected 2/1/1, got %d/%d/%d", job.TestsRun, job.TestsPassed, job.TestsFailed)
	}
	if job.ReportPath == "" {
		t.Fatalf("expected report path on job")
	}
}

func TestExecuteTimeout(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	exec.RegisterFramework("sleep", func(cfg *config.Config, job models.Job, artifactDir string) Command {
		return Command{Args: []string{"sleep", "30"}}
	})

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j5",
		Target:         t.TempDir(),
		Framework:      "sleep",
		TimeoutSeconds: 1,
	})

	if job.Status != models.StatusTimeout {
		t.Fatalf("expected timeout status, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "exceeded 1s timeout") {
		t.Fatalf("unexpected error message: %s", job.ErrorMessage)
	}
}

func TestExecuteCommandNotFound(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	exec.RegisterFramework("ghost", func(cfg *config.Config, job models.Job, artifactDir string) Command {
		return Command{Args: []string{"lazy-bird-no-such-binary"}}
	})

	job := exec.Execute(context.Background(), models.Job{
		ID:             "j6",
		Target:         t.TempDir(),
		Framework:      "ghost",
		TimeoutSeconds: 5,
	})

	if job.Status != models.StatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "start test command") {
		t.Fatalf("unexpected error message: %s", job.ErrorMessage)
	}
}

func TestGdUnit4Command(t *testing.T) {
	cfg := &config.Config{GodotBin: "/usr/bin/godot"}

	cmd := buildGdUnit4Command(cfg, models.Job{Target: "/proj", Suite: "all"}, "/art")
	argv := strings.Join(cmd.Args, " ")
	if !strings.HasPrefix(argv, "/usr/bin/godot --path /proj --headless") {
		t.Fatalf("unexpected argv: %s", argv)
	}
	if !strings.Contains(argv, "-a test/") {
		t.Fatalf("suite all should run the whole test dir: %s", argv)
	}
	if cmd.ReportPath != "/art/results.xml" {
		t.Fatalf("unexpected report path: %s", cmd.ReportPath)
	}
	if !strings.Contains(argv, "--report-path /art/results.xml") {
		t.Fatalf("report path missing from argv: %s", argv)
	}

	cmd = buildGdUnit4Command(cfg, models.Job{Target: "/proj", Suite: "res://test/test_player.gd"}, "/art")
	if !strings.Contains(strings.Join(cmd.Args, " "), "--test-suite res://test/test_player.gd") {
		t.Fatalf("named suite not passed through: %v", cmd.Args)
	}
}

func TestGutCommand(t *testing.T) {
	cfg := &config.Config{GodotBin: "godot"}

	cmd := buildGutCommand(cfg, models.Job{Target: "/proj", Suite: "all"}, "/art")
	argv := strings.Join(cmd.Args, " ")
	if !strings.Contains(argv, "res://addons/gut/gut_cmdln.gd") {
		t.Fatalf("unexpected argv: %s", argv)
	}
	if strings.Contains(argv, "-gtest=") {
		t.Fatalf("suite all should not name a test: %s", argv)
	}
	if cmd.ReportPath != "" {
		t.Fatalf("gut has no report, got %s", cmd.ReportPath)
	}

	cmd = buildGutCommand(cfg, models.Job{Target: "/proj", Suite: "test_enemy.gd"}, "/art")
	if !strings.Contains(strings.Join(cmd.Args, " "), "-gtest=test_enemy.gd") {
		t.Fatalf("named suite not passed through: %v", cmd.Args)
	}
}
