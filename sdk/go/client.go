package teaminovasdk

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
)

// Client is a minimal TeamInova HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Status          string   `json:"status"`
	Priority        string   `json:"priority"`
	AssigneeID      *string  `json:"assignee_id"`
	DueDate         *string  `json:"due_date"`
	CompletionDate  *string  `json:"completion_date"`
	PercentComplete int      `json:"percent_complete"`
	Project         Ref      `json:"project"`
	Updates         []Update `json:"updates"`
	RelatedTaskIDs  []string `json:"related_task_ids"`
}

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Update struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
	At   string `json:"at"`
}

// NewTask carries the create-task payload. Empty fields take server defaults.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Project     string `json:"project,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Issue represents the API issue model (partial).
type Issue struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	ItemType string `json:"item_type"`
	Status   string `json:"status"`
	Project  Ref    `json:"project"`
}

// Event represents a log entry.
type Event struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// TaskQuery filters ListTasks. Zero values are omitted.
type TaskQuery struct {
	Status     string
	Priority   string
	ProjectID  string
	AssigneeID string
	Overdue    bool
	Search     string
}

func (q TaskQuery) encode() string {
	v := url.Values{}
	for key, val := range map[string]string{
		"status":      q.Status,
		"priority":    q.Priority,
		"project_id":  q.ProjectID,
		"assignee_id": q.AssigneeID,
		"q":           q.Search,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	if q.Overdue {
		v.Set("overdue", "true")
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// GetTask fetches a task with its updates.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns tasks matching q.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "tasks"+q.encode(), nil, &resp)
	return resp.Items, err
}

// ChangeStatus moves a task to status. Cancelling goes through CancelTask.
func (c *Client) ChangeStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/status", url.PathEscape(id)), map[string]string{"status": status}, &resp)
	return resp, err
}

// AppendUpdate adds a progress note.
func (c *Client) AppendUpdate(ctx context.Context, id, text string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/updates", url.PathEscape(id)), map[string]string{"text": text}, &resp)
	return resp, err
}

// CancelTask cancels a task with a justification.
func (c *Client) CancelTask(ctx context.Context, id, justification string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/cancel", url.PathEscape(id)), map[string]string{"justification": justification}, &resp)
	return resp, err
}

// CreateIssue logs an issue as the authenticated member.
func (c *Client) CreateIssue(ctx context.Context, title, severity, itemType string) (Issue, error) {
	body := map[string]string{"title": title}
	if severity != "" {
		body["severity"] = severity
	}
	if itemType != "" {
		body["item_type"] = itemType
	}
	var resp Issue
	err := c.do(ctx, http.MethodPost, "issues", body, &resp)
	return resp, err
}

// Events returns the newest events first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
