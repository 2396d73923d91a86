// Package waypoint provides an HTTP client for the Waypoint goal
// commitment service.
package waypoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config configures the client.
type Config struct {
	// BaseURL is the service root, e.g. "https://waypoint.example.com".
	BaseURL string
	// APIKey is sent as a bearer token on every request.
	APIKey string
	// Timeout applies per request. Defaults to 30 seconds.
	Timeout time.Duration
	// HTTPClient overrides the underlying client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is the Waypoint API client.
type Client struct {
	config Config
	http   *http.Client

	mu     sync.RWMutex
	closed bool
}

// New creates a new Waypoint client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{config: config, http: httpClient}, nil
}

// Close marks the client closed. Subsequent calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// HealthCheck checks connectivity to the service.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Category fetches a category document with its derived achievement ratio.
func (c *Client) Category(ctx context.Context, userID, categoryID string) (*Category, error) {
	var out Category
	path := fmt.Sprintf("/api/v1/users/%s/categories/%s", url.PathEscape(userID), url.PathEscape(categoryID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Goal fetches a goal with its fully materialized step and todo tree.
func (c *Client) Goal(ctx context.Context, ref GoalRef) (*GoalTree, error) {
	var out GoalTree
	if err := c.do(ctx, http.MethodGet, goalPath(ref), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGoal creates a goal in the category and returns its id.
func (c *Client) CreateGoal(ctx context.Context, userID, categoryID, title string) (string, error) {
	path := fmt.Sprintf("/api/v1/users/%s/categories/%s/goals", url.PathEscape(userID), url.PathEscape(categoryID))
	return c.create(ctx, path, map[string]string{"title": title})
}

// RenameGoal updates the goal's title.
func (c *Client) RenameGoal(ctx context.Context, ref GoalRef, title string) error {
	return c.do(ctx, http.MethodPatch, goalPath(ref), map[string]string{"title": title}, nil)
}

// DeleteGoal removes the goal and its entire subtree.
func (c *Client) DeleteGoal(ctx context.Context, ref GoalRef) error {
	return c.do(ctx, http.MethodDelete, goalPath(ref), nil, nil)
}

// CreateStep creates a step under the goal, or under the step named by
// parentPath (ancestor step ids, outermost first).
func (c *Client) CreateStep(ctx context.Context, ref GoalRef, parentPath []string, title string) (string, error) {
	body := map[string]any{"parentPath": parentPath, "title": title}
	return c.create(ctx, goalPath(ref)+"/steps", body)
}

// RenameStep updates a step's title.
func (c *Client) RenameStep(ctx context.Context, ref GoalRef, parentPath []string, stepID, title string) error {
	body := map[string]any{"parentPath": parentPath, "title": title}
	path := goalPath(ref) + "/steps/" + url.PathEscape(stepID)
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// DeleteStep removes a step and everything under it.
func (c *Client) DeleteStep(ctx context.Context, ref GoalRef, parentPath []string, stepID string) error {
	path := goalPath(ref) + "/steps/" + url.PathEscape(stepID) + parentQuery(parentPath)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateTodo creates a todo and returns its id.
func (c *Client) CreateTodo(ctx context.Context, ref GoalRef, params AddTodoParams) (string, error) {
	return c.create(ctx, goalPath(ref)+"/todos", params)
}

// UpdateTodo patches the fields set in params.
func (c *Client) UpdateTodo(ctx context.Context, ref GoalRef, todoID string, params UpdateTodoParams) error {
	path := goalPath(ref) + "/todos/" + url.PathEscape(todoID)
	return c.do(ctx, http.MethodPatch, path, params, nil)
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, ref GoalRef, parentPath []string, todoID string) error {
	path := goalPath(ref) + "/todos/" + url.PathEscape(todoID) + parentQuery(parentPath)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RecalculateRatio recomputes the goal's ratio from its leaves and returns
// the fresh value.
func (c *Client) RecalculateRatio(ctx context.Context, ref GoalRef) (int, error) {
	var out struct {
		Ratio int `json:"ratio"`
	}
	if err := c.do(ctx, http.MethodPost, goalPath(ref)+"/ratio", nil, &out); err != nil {
		return 0, err
	}
	return out.Ratio, nil
}

// Commit stakes an amount on the goal. The caller redirects the user to
// the returned checkout URL.
func (c *Client) Commit(ctx context.Context, ref GoalRef, amount int64) (*CommitResult, error) {
	var out CommitResult
	body := map[string]int64{"amount": amount}
	if err := c.do(ctx, http.MethodPost, goalPath(ref)+"/commitment", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCommitment confirms a completed checkout session and locks the
// goal. An empty sessionID falls back to the session recorded on the goal.
func (c *Client) VerifyCommitment(ctx context.Context, ref GoalRef, sessionID string) (*ConfirmResult, error) {
	var out ConfirmResult
	body := map[string]string{"sessionId": sessionID}
	if err := c.do(ctx, http.MethodPost, goalPath(ref)+"/commitment/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCommitment removes a pending, unpaid commitment from the goal.
func (c *Client) ClearCommitment(ctx context.Context, ref GoalRef) (*ClearResult, error) {
	var out ClearResult
	if err := c.do(ctx, http.MethodDelete, goalPath(ref)+"/commitment", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle runs a settlement pass on the goal, refunding any milestones its
// current ratio has newly crossed.
func (c *Client) Settle(ctx context.Context, ref GoalRef) (*SettleResult, error) {
	var out SettleResult
	if err := c.do(ctx, http.MethodPost, goalPath(ref)+"/settlement", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export serializes the goal and its subtree as a transfer document.
func (c *Client) Export(ctx context.Context, ref GoalRef) (*TransferDocument, error) {
	var out TransferDocument
	if err := c.do(ctx, http.MethodGet, goalPath(ref)+"/export", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Import materializes a transfer document as a new goal in the category
// and returns the new goal's id.
func (c *Client) Import(ctx context.Context, userID, categoryID string, doc TransferDocument) (string, error) {
	path := fmt.Sprintf("/api/v1/users/%s/categories/%s/import", url.PathEscape(userID), url.PathEscape(categoryID))
	return c.create(ctx, path, doc)
}

// Plan asks the assistant for a goal plan built from a free-form prompt.
func (c *Client) Plan(ctx context.Context, prompt string) (*TransferDocument, error) {
	var out TransferDocument
	body := map[string]string{"prompt": prompt}
	if err := c.do(ctx, http.MethodPost, "/api/v1/assistant/plan", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// goalPath builds the route for a goal ref. Without a category id the
// legacy read-only route is used.
func goalPath(ref GoalRef) string {
	if ref.CategoryID == "" {
		return fmt.Sprintf("/api/v1/users/%s/goals/%s",
			url.PathEscape(ref.UserID), url.PathEscape(ref.GoalID))
	}
	return fmt.Sprintf("/api/v1/users/%s/categories/%s/goals/%s",
		url.PathEscape(ref.UserID), url.PathEscape(ref.CategoryID), url.PathEscape(ref.GoalID))
}

// parentQuery encodes an ancestor step path for DELETE routes, which carry
// no body.
func parentQuery(parentPath []string) string {
	if len(parentPath) == 0 {
		return ""
	}
	return "?parent=" + url.QueryEscape(strings.Join(parentPath, ","))
}

// create POSTs the body and returns the created document's id.
func (c *Client) create(ctx context.Context, path string, body any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// do sends an authenticated request and decodes the response into out.
// Error responses are decoded as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.New("client is closed")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		// Best effort; a non-problem body leaves the status-derived error.
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
