// Package client is a typed HTTP client for the collab API.
package client

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

	"collab/backend/internal/domain/ai"
	"collab/backend/internal/domain/files"
	"collab/backend/internal/domain/keyexchange"
	"collab/backend/internal/domain/project"
	"collab/backend/internal/domain/user"
)

// APIError is a non-2xx answer carrying the server's {error} message.
type APIError struct {
	Status     int
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status of an *APIError, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets where ID tokens for authenticated calls come from.
// A *Session satisfies it.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// TokenSource yields the bearer token for authenticated requests.
type TokenSource interface {
	IDToken() string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path, bearer string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

// do sends a JSON request. bearer overrides the token source when non-empty.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, bearer, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) authed(ctx context.Context, method, path string, body, out any) error {
	tok := ""
	if c.tokens != nil {
		tok = c.tokens.IDToken()
	}
	if tok == "" {
		return &APIError{Status: http.StatusUnauthorized, Message: "not signed in"}
	}
	return c.do(ctx, method, path, tok, body, out)
}

func decodeError(resp *http.Response, body []byte) error {
	var b struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	ae := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, &b); err == nil {
		ae.Message = b.Error
		ae.RetryAfter = b.RetryAfter
	} else {
		ae.Message = strings.TrimSpace(string(body))
	}
	return ae
}

// ExchangeKey trades an admin token (or a privileged ID token) for the
// server-held API key.
func (c *Client) ExchangeKey(ctx context.Context, token string) (*keyexchange.Result, error) {
	if token == "" {
		return nil, &APIError{Status: http.StatusUnauthorized, Message: "token is required"}
	}
	var out keyexchange.Result
	if err := c.do(ctx, http.MethodPost, "/api/get-api-key", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*user.Record, error) {
	var out user.Record
	if err := c.authed(ctx, http.MethodGet, "/api/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Generate(ctx context.Context, in ai.GenerateInput) (*ai.Result, error) {
	var out ai.Result
	if err := c.authed(ctx, http.MethodPost, "/api/ai/generate", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TrackEvent(ctx context.Context, name string, props map[string]any) error {
	return c.authed(ctx, http.MethodPost, "/api/analytics/events", map[string]any{"name": name, "properties": props}, nil)
}

func projectPath(id string, rest ...string) string {
	p := "/api/projects/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) ListProjects(ctx context.Context) ([]project.Project, error) {
	var out struct {
		Projects []project.Project `json:"projects"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) CreateProject(ctx context.Context, in project.CreateProjectInput) (*project.Project, error) {
	var out project.Project
	if err := c.authed(ctx, http.MethodPost, "/api/projects", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*project.Project, error) {
	var out project.Project
	if err := c.authed(ctx, http.MethodGet, projectPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProject(ctx context.Context, id string, in project.UpdateProjectInput) (*project.Project, error) {
	var out project.Project
	if err := c.authed(ctx, http.MethodPatch, projectPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.authed(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

func (c *Client) AddCollaborator(ctx context.Context, id string, in project.CollaboratorInput) (*project.Project, error) {
	var out project.Project
	if err := c.authed(ctx, http.MethodPost, projectPath(id, "collaborators"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveCollaborator(ctx context.Context, id, uid string) (*project.Project, error) {
	var out project.Project
	if err := c.authed(ctx, http.MethodDelete, projectPath(id, "collaborators", url.PathEscape(uid)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]project.Task, error) {
	var out struct {
		Tasks []project.Task `json:"tasks"`
	}
	if err := c.authed(ctx, http.MethodGet, projectPath(projectID, "tasks"), nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, projectID string, in project.CreateTaskInput) (*project.Task, error) {
	var out project.Task
	if err := c.authed(ctx, http.MethodPost, projectPath(projectID, "tasks"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, in project.UpdateTaskInput) (*project.Task, error) {
	var out project.Task
	if err := c.authed(ctx, http.MethodPatch, projectPath(projectID, "tasks", url.PathEscape(taskID)), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	return c.authed(ctx, http.MethodDelete, projectPath(projectID, "tasks", url.PathEscape(taskID)), nil, nil)
}

func (c *Client) BatchUpdateTasks(ctx context.Context, projectID string, updates []project.TaskStatusUpdate) error {
	return c.authed(ctx, http.MethodPost, projectPath(projectID, "tasks", "batch"), map[string]any{"updates": updates}, nil)
}

func (c *Client) ListMessages(ctx context.Context, projectID string, limit int) ([]project.Message, error) {
	path := projectPath(projectID, "messages")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out struct {
		Messages []project.Message `json:"messages"`
	}
	if err := c.authed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) PostMessage(ctx context.Context, projectID string, in project.PostMessageInput) (*project.Message, error) {
	var out project.Message
	if err := c.authed(ctx, http.MethodPost, projectPath(projectID, "messages"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListFiles(ctx context.Context, projectID string) ([]files.Object, error) {
	var out struct {
		Files []files.Object `json:"files"`
	}
	if err := c.authed(ctx, http.MethodGet, projectPath(projectID, "files"), nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) UploadURL(ctx context.Context, projectID string, in files.UploadInput) (*files.UploadURL, error) {
	var out files.UploadURL
	if err := c.authed(ctx, http.MethodPost, projectPath(projectID, "files", "upload-url"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
