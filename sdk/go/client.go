package plansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"planline/internal/domain"
)

// Client is a minimal Planline HTTP API client. Every failure it returns is a
// *domain.RemoteError.
type Client struct {
	BaseURL    string
	BasePath   string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		BasePath:   "/v0",
		HTTPClient: &http.Client{},
		Timeout:    10 * time.Second,
	}
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	Type     string `json:"type,omitempty"`
}

// CreateProject registers a project.
func (c *Client) CreateProject(ctx context.Context, id, name, description string) (domain.Project, error) {
	body := map[string]any{"id": id, "name": name, "description": description}
	var resp domain.Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var resp []domain.Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// CreateTask creates a task in a project. It is not added to the plan.
func (c *Client) CreateTask(ctx context.Context, projectID string, in TaskInput) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "tasks"), in, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, projectID, status string) ([]domain.Task, error) {
	endpoint := projectPath(projectID, "tasks")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []domain.Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// FetchPlan returns the server's current plan for a project.
func (c *Client) FetchPlan(ctx context.Context, projectID string) (domain.Plan, error) {
	var resp domain.Plan
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "plan"), nil, &resp)
	if resp.ProjectID == "" {
		resp.ProjectID = projectID
	}
	return resp, err
}

func (c *Client) FetchStats(ctx context.Context, projectID string) (domain.PlanStats, error) {
	var resp domain.PlanStats
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "plan/stats"), nil, &resp)
	return resp, err
}

// AddTask appends one task to the end of the plan.
func (c *Client) AddTask(ctx context.Context, projectID, taskID string) error {
	return c.do(ctx, http.MethodPost, planTaskPath(projectID, taskID, ""), nil, nil)
}

func (c *Client) RemoveTask(ctx context.Context, projectID, taskID string) error {
	return c.do(ctx, http.MethodDelete, planTaskPath(projectID, taskID, ""), nil, nil)
}

// Reorder replaces the whole plan order.
func (c *Client) Reorder(ctx context.Context, projectID string, seqs []domain.TaskSequence) error {
	body := map[string]any{"taskSequences": seqs}
	return c.do(ctx, http.MethodPut, projectPath(projectID, "plan/reorder"), body, nil)
}

// RepositionOne moves one task to an absolute 1-based position.
func (c *Client) RepositionOne(ctx context.Context, projectID, taskID string, position int) error {
	body := map[string]any{"position": position}
	return c.do(ctx, http.MethodPut, planTaskPath(projectID, taskID, "position"), body, nil)
}

// AddBatch adds many tasks. Per-task failures are in the result, not the error.
func (c *Client) AddBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error) {
	var resp domain.BatchResult
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "plan/tasks/batch"), map[string]any{"task_ids": taskIDs}, &resp)
	return resp, err
}

func (c *Client) RemoveBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error) {
	var resp domain.BatchResult
	err := c.do(ctx, http.MethodDelete, projectPath(projectID, "plan/tasks/batch"), map[string]any{"task_ids": taskIDs}, &resp)
	return resp, err
}

func (c *Client) IsInPlan(ctx context.Context, projectID, taskID string) (bool, error) {
	var resp struct {
		TaskID string `json:"task_id"`
		InPlan bool   `json:"in_plan"`
	}
	err := c.do(ctx, http.MethodGet, planTaskPath(projectID, taskID, "check"), nil, &resp)
	return resp.InPlan, err
}

func (c *Client) Position(ctx context.Context, projectID, taskID string) (int, error) {
	var resp struct {
		TaskID   string `json:"task_id"`
		Position int    `json:"position"`
	}
	err := c.do(ctx, http.MethodGet, planTaskPath(projectID, taskID, "position"), nil, &resp)
	return resp.Position, err
}

// PlanEvents returns the newest plan events, newest first.
func (c *Client) PlanEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	endpoint := projectPath(projectID, "plan/events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []domain.Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return domain.NewRemoteError(0, err.Error())
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return domain.NewRemoteError(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return domain.NewRemoteError(0, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		code, msg := errorMessage(resp.StatusCode, b)
		re := domain.NewRemoteError(resp.StatusCode, msg)
		re.Code = code
		return re
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.NewRemoteError(resp.StatusCode, "decode response: "+err.Error())
		}
	}
	return nil
}

func errorMessage(status int, body []byte) (code, message string) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Code, env.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return "", msg
	}
	return "", http.StatusText(status)
}

func projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func planTaskPath(projectID, taskID, suffix string) string {
	p := "plan/tasks/" + url.PathEscape(taskID)
	if suffix != "" {
		p += "/" + suffix
	}
	return projectPath(projectID, p)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
