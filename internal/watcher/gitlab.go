package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

const defaultGitLabAPI = "https://gitlab.com/api/v4"

// gitlabClient talks to the GitLab v4 API. The numeric project id is
// resolved from the repository path on each call.
type gitlabClient struct {
	http    *http.Client
	token   func() string
	baseURL string
}

func newGitLabClient(client *http.Client, token func() string) *gitlabClient {
	return &gitlabClient{http: client, token: token, baseURL: defaultGitLabAPI}
}

func (c *gitlabClient) projectID(ctx context.Context, project models.Project) (int, error) {
	path, err := ownerRepo(project.Repository)
	if err != nil {
		return 0, err
	}
	var out struct {
		ID int `json:"id"`
	}
	u := fmt.Sprintf("%s/projects/%s", c.baseURL, url.PathEscape(path))
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return 0, fmt.Errorf("resolve project id: %w", err)
	}
	return out.ID, nil
}

func (c *gitlabClient) ReadyIssues(ctx context.Context, project models.Project) ([]Issue, error) {
	id, err := c.projectID(ctx, project)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/projects/%d/issues?labels=%s&state=opened&order_by=created_at&sort=asc",
		c.baseURL, id, ReadyLabel)

	var raw []struct {
		IID         int      `json:"iid"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Labels      []string `json:"labels"`
		WebURL      string   `json:"web_url"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, it := range raw {
		issues = append(issues, Issue{
			Number: it.IID,
			Title:  it.Title,
			Body:   it.Description,
			Labels: it.Labels,
			URL:    it.WebURL,
		})
	}
	return issues, nil
}

func (c *gitlabClient) MarkQueued(ctx context.Context, project models.Project, issue Issue) error {
	id, err := c.projectID(ctx, project)
	if err != nil {
		return err
	}

	labels := make([]string, 0, len(issue.Labels)+1)
	for _, l := range issue.Labels {
		if l != ReadyLabel {
			labels = append(labels, l)
		}
	}
	labels = append(labels, QueuedLabel)

	u := fmt.Sprintf("%s/projects/%d/issues/%d", c.baseURL, id, issue.Number)
	payload := map[string]string{"labels": strings.Join(labels, ",")}
	if err := c.do(ctx, http.MethodPut, u, payload, nil); err != nil {
		return fmt.Errorf("update labels: %w", err)
	}
	return nil
}

func (c *gitlabClient) do(ctx context.Context, method, reqURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("PRIVATE-TOKEN", tok)
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
		return fmt.Errorf("gitlab %s %s: %s", method, req.URL.Path, strings.TrimSpace(resp.Status+" "+string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
