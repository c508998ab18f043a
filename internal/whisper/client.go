// Package whisper transcribes captured audio through an OpenAI-compatible
// Whisper HTTP server (faster-whisper-server, whisper.cpp server, and similar).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/transcript"
	"github.com/rbright/voicebridge/internal/version"
)

const (
	defaultTimeout  = 2 * time.Minute
	maxErrorBody    = 512
	languageAuto    = "auto"
	responseFormat  = "verbose_json"
	uploadFieldName = "file"
	uploadFileName  = "turn.wav"
)

// Config selects the server endpoint and recognition parameters.
type Config struct {
	URL      string
	Model    string
	Language string
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client posts one WAV upload per turn.
type Client struct {
	endpoint   string
	model      string
	language   string
	httpClient *http.Client
}

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type response struct {
	Text     string    `json:"text"`
	Segments []segment `json:"segments"`
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("whisper url must be an absolute http(s) URL, got %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:   endpoint,
		model:      strings.TrimSpace(cfg.Model),
		language:   strings.TrimSpace(cfg.Language),
		httpClient: httpClient,
	}, nil
}

// Transcribe returns the recognized segments trimmed and space-joined in
// chronological order. An empty buffer returns "" without a request.
func (c *Client) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if buf.Empty() {
		return "", nil
	}

	body, contentType, err := c.multipartBody(buf)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("whisper returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	return decoded.transcript(), nil
}

// Ping reports whether the server answers HTTP at all; any status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build whisper probe: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper probe: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) multipartBody(buf audio.Buffer) (io.Reader, string, error) {
	wavData, err := audio.EncodeWAV(buf)
	if err != nil {
		return nil, "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fileWriter, err := writer.CreateFormFile(uploadFieldName, uploadFileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := [][2]string{{"response_format", responseFormat}}
	if c.model != "" {
		fields = append(fields, [2]string{"model", c.model})
	}
	if c.language != "" && !strings.EqualFold(c.language, languageAuto) {
		fields = append(fields, [2]string{"language", c.language})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

func (r response) transcript() string {
	if len(r.Segments) == 0 {
		return transcript.Assemble([]string{r.Text})
	}

	ordered := slices.Clone(r.Segments)
	slices.SortStableFunc(ordered, func(a, b segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	texts := make([]string, 0, len(ordered))
	for _, seg := range ordered {
		texts = append(texts, seg.Text)
	}
	return transcript.Assemble(texts)
}
