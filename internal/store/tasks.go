package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

// TaskStore manages the filesystem drop-dir consumed by out-of-process
// coding agents. One task-<project>-<issue>.json file per task; agents
// claim a task by removing its file.
type TaskStore struct {
	dir string
}

// NewTaskStore wraps dir. The directory is created on first write.
func NewTaskStore(dir string) *TaskStore {
	return &TaskStore{dir: dir}
}

// Dir is the queue directory path.
func (s *TaskStore) Dir() string { return s.dir }

// TaskFileName is the canonical file name for a task.
func TaskFileName(t models.TaskSpec) string {
	return fmt.Sprintf("task-%s-%d.json", t.ProjectID, t.IssueID)
}

// List returns tasks sorted by queue time, optionally filtered by project.
// Unreadable files are skipped.
func (s *TaskStore) List(projectID string) ([]models.TaskSpec, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "task-*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan queue dir: %w", err)
	}

	tasks := make([]models.TaskSpec, 0, len(paths))
	for _, p := range paths {
		t, err := readTask(p)
		if err != nil {
			continue
		}
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].QueuedAt.Before(tasks[j].QueuedAt) })
	return tasks, nil
}

// Get finds a task by loose id: the canonical file name first, then the
// first file whose name contains the id.
func (s *TaskStore) Get(id string) (models.TaskSpec, error) {
	if t, err := readTask(filepath.Join(s.dir, "task-"+id+".json")); err == nil {
		return t, nil
	}
	path, err := s.find(id)
	if err != nil {
		return models.TaskSpec{}, err
	}
	return readTask(path)
}

// Put writes the task atomically under its canonical name and returns the
// file path.
func (s *TaskStore) Put(t models.TaskSpec) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create queue dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}

	path := filepath.Join(s.dir, TaskFileName(t))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write task: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replace task: %w", err)
	}
	return path, nil
}

// Delete removes a task file by loose id.
func (s *TaskStore) Delete(id string) error {
	path := filepath.Join(s.dir, "task-"+id+".json")
	if _, err := os.Stat(path); err != nil {
		path, err = s.find(id)
		if err != nil {
			return err
		}
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove task: %w", err)
	}
	return nil
}

// TaskStats summarizes the waiting tasks.
type TaskStats struct {
	TotalTasks   int            `json:"total_tasks"`
	ByProject    map[string]int `json:"by_project"`
	ByComplexity map[string]int `json:"by_complexity"`
	QueueDir     string         `json:"queue_dir"`
}

// Stats counts waiting tasks by project and complexity.
func (s *TaskStore) Stats() (TaskStats, error) {
	tasks, err := s.List("")
	if err != nil {
		return TaskStats{}, err
	}

	stats := TaskStats{
		TotalTasks: len(tasks),
		ByProject:  make(map[string]int),
		ByComplexity: map[string]int{
			models.ComplexitySimple:  0,
			models.ComplexityMedium:  0,
			models.ComplexityComplex: 0,
			"unknown":                0,
		},
		QueueDir: s.dir,
	}
	for _, t := range tasks {
		project := t.ProjectID
		if project == "" {
			project = "unknown"
		}
		stats.ByProject[project]++

		complexity := t.Complexity
		if _, known := stats.ByComplexity[complexity]; !known {
			complexity = "unknown"
		}
		stats.ByComplexity[complexity]++
	}
	return stats, nil
}

func (s *TaskStore) find(id string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "task-*.json"))
	if err != nil {
		return "", fmt.Errorf("scan queue dir: %w", err)
	}
	for _, p := range paths {
		if strings.Contains(filepath.Base(p), id) {
			return p, nil
		}
	}
	return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
}

func readTask(path string) (models.TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.TaskSpec{}, fmt.Errorf("read task: %w", err)
	}
	var t models.TaskSpec
	if err := json.Unmarshal(data, &t); err != nil {
		return models.TaskSpec{}, fmt.Errorf("parse task %s: %w", filepath.Base(path), err)
	}
	return t, nil
}
