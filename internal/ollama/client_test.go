package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/voicebridge/internal/session"
	"github.com/rbright/voicebridge/internal/version"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, timeout time.Duration) *Client {
	t.Helper()
	client, err := New(Config{
		URL:          serverURL + "/api/generate",
		Model:        "qwen2.5-coder:7b",
		SystemPrompt: "clean this up",
		Timeout:      timeout,
	})
	require.NoError(t, err)
	return client
}

func TestRefineSendsGenerateRequest(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"model":"qwen2.5-coder:7b","response":"  Fix the bug in authentication.\n","done":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	refined, err := client.Refine(context.Background(), "fix the the bug in auth")
	require.NoError(t, err)
	require.Equal(t, "Fix the bug in authentication.", refined)

	require.Equal(t, generateRequest{
		Model:  "qwen2.5-coder:7b",
		System: "clean this up",
		Prompt: "fix the the bug in auth",
		Stream: false,
	}, got)
}

func TestRefineMissingResponseFallsBackToTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"done":true}`)
	}))
	defer server.Close()

	refined, err := newTestClient(t, server.URL, time.Second).Refine(context.Background(), "keep me ")
	require.NoError(t, err)
	require.Equal(t, "keep me", refined)
}

func TestRefineEmptyTextSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	refined, err := newTestClient(t, server.URL, time.Second).Refine(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, refined)
	require.Zero(t, calls.Load())
}

func TestRefineStatusErrorIsGeneric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'qwen2.5-coder:7b' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, time.Second).Refine(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
	require.NotErrorIs(t, err, session.ErrRefinementTimeout)
	require.NotErrorIs(t, err, session.ErrRefinementUnreachable)
}

func TestRefineDecodeErrorIsGeneric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not-json")
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, time.Second).Refine(context.Background(), "hello")
	require.ErrorContains(t, err, "decode ollama response")
}

func TestRefineTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(t, server.URL, 50*time.Millisecond).Refine(context.Background(), "hello")
	require.ErrorIs(t, err, session.ErrRefinementTimeout)
	require.Equal(t, "LLM refinement timed out", session.ClientMessage(err))
}

func TestRefineUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	_, err := newTestClient(t, serverURL, time.Second).Refine(context.Background(), "hello")
	require.ErrorIs(t, err, session.ErrRefinementUnreachable)
	require.Equal(t, "Ollama not running, start it with: ollama serve", session.ClientMessage(err))
}

func TestRefineCallerCancellationIsNotClassified(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, server.URL, time.Second).Refine(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, session.ErrRefinementTimeout)
	require.NotErrorIs(t, err, session.ErrRefinementUnreachable)
}

func TestModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"qwen2.5-coder:7b"},{"name":"llama3:8b"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	models, err := client.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2.5-coder:7b", "llama3:8b"}, models)
	require.Equal(t, "qwen2.5-coder:7b", client.Model())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{URL: "localhost:11434", Model: "m"})
	require.Error(t, err)

	_, err = New(Config{URL: "http://localhost:11434/api/generate", Model: " "})
	require.ErrorContains(t, err, "model")
}
