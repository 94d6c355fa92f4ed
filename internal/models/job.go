package models

import (
	"time"
)

// Job statuses cover the full lifecycle of a test run.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Priorities are recorded on submission for reporting. Execution order is
// strictly FIFO regardless of priority.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Built-in test frameworks.
const (
	FrameworkGdUnit4 = "gdUnit4"
	FrameworkGUT     = "GUT"
)

// Results of a finished run. A nil Job.Result means the outcome is unknown.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
)

// Job is a single test run tracked by the coordination service.
type Job struct {
	ID             string     `json:"job_id"`
	Target         string     `json:"target"`
	Suite          string     `json:"suite"`
	Framework      string     `json:"framework"`
	TimeoutSeconds int        `json:"timeout_seconds"`
	AgentID        string     `json:"agent_id,omitempty"`
	TaskID         int        `json:"task_id,omitempty"`
	CallbackURL    string     `json:"callback_url,omitempty"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Result         *string    `json:"result,omitempty"`
	TestsRun       int        `json:"tests_run"`
	TestsPassed    int        `json:"tests_passed"`
	TestsFailed    int        `json:"tests_failed"`
	Output         string     `json:"output,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	LogPath        string     `json:"log_path,omitempty"`
	ReportPath     string     `json:"report_path,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusComplete, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// DurationSeconds is the wall-clock run time. Zero until both stamps exist.
func (j *Job) DurationSeconds() float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}
