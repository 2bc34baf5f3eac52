// Package hub fetches model metadata and documentation from a Hugging
// Face compatible model registry. Every failure is absorbed: callers get
// nil metadata or empty documentation and carry on with defaults.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/telemetry"
)

// UserAgent identifies the service to the registry.
const UserAgent = "Alacard-Notebook-Generator/1.0"

// DefaultBaseURL is the public Hugging Face Hub.
const DefaultBaseURL = "https://huggingface.co"

// DefaultBranch is the documentation fallback revision.
const DefaultBranch = "main"

// maxDocumentationBytes caps README downloads.
const maxDocumentationBytes = 2 << 20

// errNotFound marks a 404 from the registry.
var errNotFound = errors.New("hub: not found")

// Config holds Client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to the registry over HTTP.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a registry client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
		tracer: telemetry.Tracer("alacard/hub"),
	}
}

type apiModel struct {
	ID          string   `json:"id"`
	ModelID     string   `json:"modelId"`
	PipelineTag string   `json:"pipeline_tag"`
	Downloads   int64    `json:"downloads"`
	Likes       int64    `json:"likes"`
	Tags        []string `json:"tags"`
	SHA         string   `json:"sha"`
	CardData    struct {
		License any `json:"license"`
	} `json:"cardData"`
}

// FetchMetadata returns registry metadata for modelID, or nil when the
// registry is unreachable, answers with an error, or returns garbage.
func (c *Client) FetchMetadata(ctx context.Context, modelID string) *model.ModelMetadata {
	ctx, span := c.tracer.Start(ctx, "hub.FetchMetadata",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("alacard.model_id", modelID)))
	defer span.End()

	body, err := c.get(ctx, c.baseURL+"/api/models/"+escapeModelID(modelID), "application/json")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("model metadata unavailable", "model_id", modelID, "error", err)
		return nil
	}

	var raw apiModel
	if err := json.Unmarshal(body, &raw); err != nil {
		span.SetStatus(codes.Error, "decode")
		c.logger.Warn("model metadata undecodable", "model_id", modelID, "error", err)
		return nil
	}
	return toMetadata(modelID, raw)
}

func toMetadata(requested string, raw apiModel) *model.ModelMetadata {
	id := raw.ID
	if id == "" {
		id = raw.ModelID
	}
	if id == "" {
		id = requested
	}
	display := id
	if i := strings.LastIndex(id, "/"); i >= 0 {
		display = id[i+1:]
	}
	return &model.ModelMetadata{
		ID:            id,
		DisplayName:   display,
		TaskKind:      model.TaskKindFromPipelineTag(raw.PipelineTag),
		PipelineTag:   raw.PipelineTag,
		DownloadCount: raw.Downloads,
		LikeCount:     raw.Likes,
		Tags:          raw.Tags,
		License:       license(raw),
		Revision:      raw.SHA,
	}
}

// license prefers cardData.license and falls back to a "license:" tag.
func license(raw apiModel) string {
	switch v := raw.CardData.License.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	for _, t := range raw.Tags {
		if l, ok := strings.CutPrefix(t, "license:"); ok {
			return l
		}
	}
	return ""
}

// FetchDocumentation returns the model's README. It tries the pinned
// revision first, then the default branch; both failing yields "".
func (c *Client) FetchDocumentation(ctx context.Context, modelID, revision string) string {
	ctx, span := c.tracer.Start(ctx, "hub.FetchDocumentation",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("alacard.model_id", modelID)))
	defer span.End()

	refs := []string{DefaultBranch}
	if revision != "" && revision != DefaultBranch {
		refs = []string{revision, DefaultBranch}
	}
	for _, ref := range refs {
		u := fmt.Sprintf("%s/%s/raw/%s/README.md", c.baseURL, escapeModelID(modelID), url.PathEscape(ref))
		body, err := c.get(ctx, u, "text/plain")
		if err == nil {
			span.SetAttributes(attribute.String("alacard.revision", ref))
			return string(body)
		}
		c.logger.Debug("documentation fetch failed", "model_id", modelID, "revision", ref, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	span.SetStatus(codes.Error, "documentation unavailable")
	return ""
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("hub: create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("hub: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentationBytes))
	if err != nil {
		return nil, fmt.Errorf("hub: read body: %w", err)
	}
	return body, nil
}

// escapeModelID escapes each path segment of an owner/name identifier.
func escapeModelID(id string) string {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
