// Package ollama refines raw transcripts through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/voicebridge/internal/session"
	"github.com/rbright/voicebridge/internal/version"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
	tagsPath       = "/api/tags"
)

// Config selects the generate endpoint, model, and instruction.
type Config struct {
	URL          string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client issues one non-streaming generate request per turn.
type Client struct {
	endpoint     *url.URL
	model        string
	systemPrompt string
	timeout      time.Duration
	httpClient   *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	endpoint, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, fmt.Errorf("ollama url must be an absolute http(s) URL, got %q", cfg.URL)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama model must not be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint:     endpoint,
		model:        strings.TrimSpace(cfg.Model),
		systemPrompt: cfg.SystemPrompt,
		timeout:      timeout,
		httpClient:   httpClient,
	}, nil
}

// Refine returns the model's cleanup of text, trimmed. Empty text returns ""
// without a request. Timeouts wrap session.ErrRefinementTimeout and
// connection failures wrap session.ErrRefinementUnreachable.
func (c *Client) Refine(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}

	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		System: c.systemPrompt,
		Prompt: text,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("ollama returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("ollama generate after %s: %w", c.timeout, session.ErrRefinementTimeout)
		}
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if decoded.Response == nil {
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(*decoded.Response), nil
}

// Models lists the models installed on the server via GET /api/tags.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	tagsURL := c.endpoint.ResolveReference(&url.URL{Path: tagsPath})

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, tagsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build ollama tags request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned %s", resp.Status)
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ollama tags: %w", err)
	}

	names := make([]string, 0, len(decoded.Models))
	for _, model := range decoded.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// classify maps a transport error to the refinement error kinds. A caller
// cancellation is passed through unchanged.
func (c *Client) classify(parent context.Context, reqCtx context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("ollama request: %w", parentErr)
	}

	var netErr net.Error
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("ollama generate after %s: %w", c.timeout, session.ErrRefinementTimeout)
	}
	return fmt.Errorf("ollama at %s: %w: %v", c.endpoint.Host, session.ErrRefinementUnreachable, err)
}
