package brewboardsdk

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

// Client is a minimal BrewBoard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Profile represents a registered user's profile.
type Profile struct {
	ActorID   string `json:"actor_id"`
	Username  string `json:"username"`
	Balance   uint64 `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// Me describes the calling identity.
type Me struct {
	ActorID string   `json:"actor_id"`
	Role    string   `json:"role"`
	Profile *Profile `json:"profile"`
	Source  string   `json:"source,omitempty"`
}

// Task represents a board task.
type Task struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reward      uint64 `json:"reward"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

// Completion represents a submitted task completion.
type Completion struct {
	ID          string  `json:"id"`
	TaskID      uint64  `json:"task_id"`
	UserID      string  `json:"user_id"`
	CompletedAt string  `json:"completed_at"`
	Approved    bool    `json:"approved"`
	ApprovedBy  *string `json:"approved_by,omitempty"`
	ApprovedAt  *string `json:"approved_at,omitempty"`
}

// Withdrawal represents a withdrawal request.
type Withdrawal struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      uint64 `json:"amount"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register registers the calling identity with a display name.
func (c *Client) Register(ctx context.Context, username string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodPost, "users/register", map[string]any{"username": username}, &resp)
	return resp, err
}

// Me returns the caller's identity, role and profile.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// SaveProfile updates the caller's display name.
func (c *Client) SaveProfile(ctx context.Context, username string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodPut, "me/profile", map[string]any{"username": username}, &resp)
	return resp, err
}

// Balance returns the caller's reward balance.
func (c *Client) Balance(ctx context.Context) (uint64, error) {
	var resp struct {
		Balance uint64 `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "me/balance", nil, &resp)
	return resp.Balance, err
}

// CreateTask posts a new task (admin).
func (c *Client) CreateTask(ctx context.Context, title, description, category string, reward uint64) (Task, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"reward":      reward,
		"category":    category,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status and category.
func (c *Client) Tasks(ctx context.Context, status, category string) ([]Task, error) {
	endpoint := "tasks"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if category != "" {
		q.Set("category", category)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Task fetches a task by id.
func (c *Client) Task(ctx context.Context, id uint64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task to a new status (admin).
func (c *Client) SetTaskStatus(ctx context.Context, id uint64, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%d/status", id), map[string]any{"status": status}, &resp)
	return resp, err
}

// SubmitCompletion records that the caller finished a task.
func (c *Client) SubmitCompletion(ctx context.Context, taskID uint64) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/completions", taskID), nil, &resp)
	return resp, err
}

// ApproveCompletion approves a user's completion and credits the reward (admin).
func (c *Client) ApproveCompletion(ctx context.Context, taskID uint64, userID string) (Completion, error) {
	endpoint := fmt.Sprintf("tasks/%d/completions/%s/approve", taskID, url.PathEscape(userID))
	var resp Completion
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// MyCompletions lists the caller's completions, newest first.
func (c *Client) MyCompletions(ctx context.Context) ([]Completion, error) {
	var resp []Completion
	err := c.do(ctx, http.MethodGet, "me/completions", nil, &resp)
	return resp, err
}

// PendingCompletions lists completions awaiting approval (admin).
func (c *Client) PendingCompletions(ctx context.Context) ([]Completion, error) {
	var resp []Completion
	err := c.do(ctx, http.MethodGet, "completions", nil, &resp)
	return resp, err
}

// RequestWithdrawal asks to withdraw part of the caller's balance.
func (c *Client) RequestWithdrawal(ctx context.Context, amount uint64) (Withdrawal, error) {
	var resp Withdrawal
	err := c.do(ctx, http.MethodPost, "withdrawals", map[string]any{"amount": amount}, &resp)
	return resp, err
}

// Withdrawals lists withdrawal requests visible to the caller.
func (c *Client) Withdrawals(ctx context.Context) ([]Withdrawal, error) {
	var resp []Withdrawal
	err := c.do(ctx, http.MethodGet, "withdrawals", nil, &resp)
	return resp, err
}

// AssignRole assigns a role to an identity (admin).
func (c *Client) AssignRole(ctx context.Context, actorID, role string) error {
	body := map[string]any{"actor_id": actorID, "role": role}
	return c.do(ctx, http.MethodPost, "roles/assign", body, nil)
}

// Contact submits the public contact form.
func (c *Client) Contact(ctx context.Context, name, email, message string) error {
	body := map[string]any{"name": name, "email": email, "message": message}
	return c.do(ctx, http.MethodPost, "contact", body, nil)
}

// Events returns recent events (admin).
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin exchanges an identity for a short-lived bearer token and stores
// it on the client. Intended for local development only.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"actor_id": actorID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
