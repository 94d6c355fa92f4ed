// Package watcher polls git platforms for ready issues and queues them as
// agent tasks.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/store"
)

// ReadyLabel marks issues waiting to be picked up; QueuedLabel replaces
// it once a task file exists.
const (
	ReadyLabel  = "ready"
	QueuedLabel = "in-queue"
)

// Issue is the platform-independent slice of an issue the watcher needs.
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
	URL    string
}

// platformClient lists ready issues and swaps labels on one git platform.
type platformClient interface {
	ReadyIssues(ctx context.Context, project models.Project) ([]Issue, error)
	MarkQueued(ctx context.Context, project models.Project, issue Issue) error
}

// Watcher turns ready issues on enabled projects into task files. It runs
// as a single goroutine; the processed map is not shared.
type Watcher struct {
	cfg       *config.Config
	projects  *store.ConfigStore
	tasks     *store.TaskStore
	logger    *slog.Logger
	clients   map[string]platformClient
	statePath string
	processed map[string]bool
}

// New creates a watcher with the real platform clients. Already processed
// issues are loaded from the state file; a missing or corrupt file starts
// the record fresh.
func New(cfg *config.Config, projects *store.ConfigStore, tasks *store.TaskStore, logger *slog.Logger) *Watcher {
	client := &http.Client{Timeout: 30 * time.Second}
	token := func() string { return loadToken(cfg) }
	return &Watcher{
		cfg:       cfg,
		projects:  projects,
		tasks:     tasks,
		logger:    logger,
		statePath: cfg.ProcessedPath(),
		processed: loadState(cfg.ProcessedPath()),
		clients: map[string]platformClient{
			models.PlatformGitHub: newGitHubClient(client, token),
			models.PlatformGitLab: newGitLabClient(client, token),
		},
	}
}

// Run polls until the context is cancelled. The interval follows the
// stored system config, so edits through the API apply on the next cycle.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("issue watcher started",
		slog.String("queue_dir", w.tasks.Dir()),
		slog.Int("known_issues", len(w.processed)))

	for {
		w.PollOnce(ctx)

		interval := 60 * time.Second
		if sc, err := w.projects.System(); err == nil && sc.PollIntervalSeconds > 0 {
			interval = time.Duration(sc.PollIntervalSeconds) * time.Second
		}
		select {
		case <-ctx.Done():
			w.logger.Info("issue watcher stopped")
			return
		case <-time.After(interval):
		}
	}
}

// PollOnce scans every eligible project once. Errors are logged per
// project and never abort the cycle.
func (w *Watcher) PollOnce(ctx context.Context) {
	projects, err := w.projects.ListProjects()
	if err != nil {
		w.logger.Error("list projects", slog.Any("error", err))
		return
	}
	for _, p := range projects {
		if !p.Enabled || p.Repository == "" {
			continue
		}
		client, ok := w.clients[p.GitPlatform]
		if !ok {
			continue
		}
		if err := w.pollProject(ctx, client, p); err != nil {
			w.logger.Error("poll project", slog.String("project", p.ID), slog.Any("error", err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Watcher) pollProject(ctx context.Context, client platformClient, p models.Project) error {
	issues, err := client.ReadyIssues(ctx, p)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		key := issueKey(p, issue)
		if w.processed[key] {
			continue
		}

		path, err := w.tasks.Put(w.buildTask(p, issue))
		if err != nil {
			w.logger.Error("queue task",
				slog.String("project", p.ID),
				slog.Int("issue", issue.Number),
				slog.Any("error", err))
			continue
		}
		if err := client.MarkQueued(ctx, p, issue); err != nil {
			w.logger.Warn("update labels",
				slog.String("project", p.ID),
				slog.Int("issue", issue.Number),
				slog.Any("error", err))
		}

		w.processed[key] = true
		if err := w.saveProcessed(); err != nil {
			w.logger.Warn("save processed state", slog.Any("error", err))
		}
		w.logger.Info("task queued",
			slog.String("project", p.ID),
			slog.Int("issue", issue.Number),
			slog.String("title", issue.Title),
			slog.String("file", path))
	}
	return nil
}

func (w *Watcher) buildTask(p models.Project, issue Issue) models.TaskSpec {
	complexity := models.ComplexityMedium
	for _, label := range issue.Labels {
		if label == models.ComplexitySimple || label == models.ComplexityMedium || label == models.ComplexityComplex {
			complexity = label
			break
		}
	}

	sections := ParseSections(issue.Body)
	return models.TaskSpec{
		IssueID:            issue.Number,
		ProjectID:          p.ID,
		Title:              issue.Title,
		Body:               issue.Body,
		Steps:              sections["Detailed Steps"],
		AcceptanceCriteria: sections["Acceptance Criteria"],
		Complexity:         complexity,
		URL:                issue.URL,
		Platform:           p.GitPlatform,
		Repository:         p.Repository,
		QueuedAt:           time.Now().UTC(),
	}
}

// ParseSections splits a markdown body into its "##" sections, keeping
// only list-style lines (numbered, bulleted, or checkboxes). Free-form
// prose under a heading is dropped.
func ParseSections(body string) map[string][]string {
	sections := make(map[string][]string)
	var current string
	var content []string

	flush := func() {
		if current != "" {
			sections[current] = content
		}
	}
	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "##") {
			flush()
			current = strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			content = nil
			continue
		}
		if current == "" || stripped == "" {
			continue
		}
		if isListLine(stripped) {
			content = append(content, stripped)
		}
	}
	flush()
	return sections
}

func isListLine(s string) bool {
	for _, prefix := range []string{"-", "*", "[ ]", "[x]"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return len(s) >= 2 && s[0] >= '1' && s[0] <= '9' && s[1] == '.'
}

// issueKey dedupes across projects sharing the watcher state file.
func issueKey(p models.Project, issue Issue) string {
	return fmt.Sprintf("%s#%d", p.Repository, issue.Number)
}

func loadToken(cfg *config.Config) string {
	data, err := os.ReadFile(cfg.TokenPath())
	if err == nil {
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return tok
		}
	}
	return cfg.GitToken
}

func loadState(path string) map[string]bool {
	processed := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return processed
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return processed
	}
	for _, k := range keys {
		processed[k] = true
	}
	return processed
}

func (w *Watcher) saveProcessed() error {
	keys := make([]string, 0, len(w.processed))
	for k := range w.processed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.statePath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := w.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, w.statePath); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
