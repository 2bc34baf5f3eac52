package alacard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Alacard server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	// It does not bound Observe, which runs until the task finishes.
	Timeout time.Duration
}

// Client is an HTTP client for the Alacard API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("alacard: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("alacard: BaseURL %q must be an absolute http(s) URL", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Generate starts a notebook generation task. The task runs on the server;
// follow it with Status or Observe.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.post(ctx, "/v1/notebooks/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateRecipe resolves the request's cards against the server catalog
// without generating anything and returns the resolved recipe.
func (c *Client) ValidateRecipe(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	var recipe json.RawMessage
	if err := c.post(ctx, "/v1/recipes/validate", req, &recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

// Status returns the current snapshot of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.get(ctx, "/v1/tasks/"+url.PathEscape(taskID), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetNotebook returns a generated notebook by share ID. Each call counts as
// a view.
func (c *Client) GetNotebook(ctx context.Context, shareID string) (*NotebookRecord, error) {
	var rec NotebookRecord
	if err := c.get(ctx, "/v1/notebooks/"+url.PathEscape(shareID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Download fetches the notebook file for a share ID. Each call counts as a
// download.
func (c *Client) Download(ctx context.Context, shareID string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/notebooks/"+url.PathEscape(shareID)+"/download", nil)
	if err != nil {
		return nil, fmt.Errorf("alacard: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alacard: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alacard: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	filename := shareID + ".ipynb"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return &Download{Filename: filename, Content: body}, nil
}

// Cards lists catalog cards of one kind: models, prompt-packs, topics,
// difficulties or ui-components.
func (c *Client) Cards(ctx context.Context, kind string) ([]map[string]any, error) {
	var cards []map[string]any
	if err := c.get(ctx, "/v1/cards/"+url.PathEscape(kind), &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// Health reports server and storage health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// wsURL maps the base URL onto the websocket scheme for path.
func (c *Client) wsURL(path string) string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path
	default:
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path
	}
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("alacard: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("alacard: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("alacard: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("alacard: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("alacard: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("alacard: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("alacard: response has no data")
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("alacard: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	apiErr.Code = http.StatusText(statusCode)
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
