package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

const defaultGitHubAPI = "https://api.github.com"

// githubClient talks to the GitHub REST v3 API.
type githubClient struct {
	http    *http.Client
	token   func() string
	baseURL string
}

func newGitHubClient(client *http.Client, token func() string) *githubClient {
	return &githubClient{http: client, token: token, baseURL: defaultGitHubAPI}
}

// ownerRepo pulls the trailing owner/name pair out of a repository URL or
// shorthand like "owner/name".
func ownerRepo(repository string) (string, error) {
	parts := strings.Split(strings.TrimRight(repository, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", fmt.Errorf("repository %q: want owner/name", repository)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}

func (c *githubClient) ReadyIssues(ctx context.Context, project models.Project) ([]Issue, error) {
	repo, err := ownerRepo(project.Repository)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/repos/%s/issues?labels=%s&state=open&sort=created&direction=asc",
		c.baseURL, repo, ReadyLabel)

	var raw []struct {
		Number      int       `json:"number"`
		Title       string    `json:"title"`
		Body        string    `json:"body"`
		HTMLURL     string    `json:"html_url"`
		PullRequest *struct{} `json:"pull_request"`
		Labels      []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := c.do(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, it := range raw {
		// Pull requests show up in the issues listing too.
		if it.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(it.Labels))
		for _, l := range it.Labels {
			labels = append(labels, l.Name)
		}
		issues = append(issues, Issue{
			Number: it.Number,
			Title:  it.Title,
			Body:   it.Body,
			Labels: labels,
			URL:    it.HTMLURL,
		})
	}
	return issues, nil
}

func (c *githubClient) MarkQueued(ctx context.Context, project models.Project, issue Issue) error {
	repo, err := ownerRepo(project.Repository)
	if err != nil {
		return err
	}

	remove := fmt.Sprintf("%s/repos/%s/issues/%d/labels/%s", c.baseURL, repo, issue.Number, ReadyLabel)
	if err := c.do(ctx, http.MethodDelete, remove, nil, nil); err != nil {
		return fmt.Errorf("remove %s label: %w", ReadyLabel, err)
	}

	add := fmt.Sprintf("%s/repos/%s/issues/%d/labels", c.baseURL, repo, issue.Number)
	payload := map[string][]string{"labels": {QueuedLabel}}
	if err := c.do(ctx, http.MethodPost, add, payload, nil); err != nil {
		return fmt.Errorf("add %s label: %w", QueuedLabel, err)
	}
	return nil
}

func (c *githubClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "token "+tok)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github %s %s: %s", method, req.URL.Path, strings.TrimSpace(resp.Status+" "+string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
