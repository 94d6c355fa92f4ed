package executor

import (
	"path/filepath"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

// The built-in invocations mirror what the agent scripts run by hand,
// flag order included. Commands run with the project dir as cwd, so the
// report path must be absolute.

func buildGdUnit4Command(cfg *config.Config, job models.Job, artifactDir string) Command {
	report := filepath.Join(artifactDir, "results.xml")
	args := []string{
		cfg.GodotBin,
		"--path", job.Target,
		"--headless",
		"-s", "res://addons/gdUnit4/bin/GdUnitCmdTool.gd",
		"--ignoreHeadlessMode",
	}
	if job.Suite != "" && job.Suite != "all" {
		args = append(args, "--test-suite", job.Suite)
	} else {
		args = append(args, "-a", "test/")
	}
	args = append(args, "--report-format", "junit", "--report-path", report)
	return Command{Args: args, ReportPath: report}
}

func buildGutCommand(cfg *config.Config, job models.Job, _ string) Command {
	args := []string{
		cfg.GodotBin,
		"--path", job.Target,
		"--headless",
		"-s", "res://addons/gut/gut_cmdln.gd",
		"-gdir=res://test",
	}
	if job.Suite != "" && job.Suite != "all" {
		args = append(args, "-gtest="+job.Suite)
	}
	return Command{Args: args}
}
