package doctor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckConfig(t *testing.T) {
	loaded := checkConfig(config.Loaded{Path: "/tmp/config.jsonc", Exists: true})
	require.True(t, loaded.Pass)
	require.Contains(t, loaded.Message, "loaded")

	missing := checkConfig(config.Loaded{Path: "/tmp/config.jsonc"})
	require.True(t, missing.Pass)
	require.Contains(t, missing.Message, "not found")

	fallback := checkConfig(config.Loaded{
		Path:     "/tmp/config.jsonc",
		Exists:   true,
		Fallback: true,
		Warnings: []config.Warning{{Message: "invalid config: port must be between 1 and 65535"}},
	})
	require.False(t, fallback.Pass)
	require.Contains(t, fallback.Message, "port must be")
}

func TestCheckAudio(t *testing.T) {
	cfg := config.Default()

	check := checkAudio(context.Background(), cfg, func(_ context.Context, input string, fallback string) (audio.Selection, error) {
		require.Equal(t, "default", input)
		require.Equal(t, "default", fallback)
		return audio.Selection{Device: audio.Device{ID: "alsa_input.usb"}, Warning: "using fallback"}, nil
	})
	require.True(t, check.Pass)
	require.Equal(t, `selected "alsa_input.usb" (using fallback)`, check.Message)

	check = checkAudio(context.Background(), cfg, func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{}, errors.New("no pulse server")
	})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no pulse server")

	cfg.Audio.Backend = "alsa"
	check = checkAudio(context.Background(), cfg, nil)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "unsupported audio backend")
}

func TestCheckWhisper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	cfg := config.Default()
	cfg.WhisperURL = server.URL + "/v1/audio/transcriptions"
	check := checkWhisper(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "reachable")

	server.Close()
	check = checkWhisper(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "unreachable")
}

func TestCheckOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"qwen2.5-coder:7b"},{"name":"llama3:latest"}]}`)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.OllamaURL = server.URL + "/api/generate"

	checks := checkOllama(context.Background(), cfg)
	require.Len(t, checks, 2)
	require.True(t, checks[0].Pass)
	require.Contains(t, checks[0].Message, "2 model(s)")
	require.True(t, checks[1].Pass)

	cfg.OllamaModel = "llama3"
	checks = checkOllama(context.Background(), cfg)
	require.True(t, checks[1].Pass)

	cfg.OllamaModel = "mistral:7b"
	checks = checkOllama(context.Background(), cfg)
	require.False(t, checks[1].Pass)
	require.Contains(t, checks[1].Message, "ollama pull mistral:7b")
}

func TestCheckOllamaUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := config.Default()
	cfg.OllamaURL = url + "/api/generate"

	checks := checkOllama(context.Background(), cfg)
	require.Len(t, checks, 1)
	require.False(t, checks[0].Pass)
	require.Contains(t, checks[0].Message, "ollama serve")
}

func TestCheckListenAddr(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	check := checkListenAddr(addr)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "already running")

	require.NoError(t, listener.Close())
	check = checkListenAddr(addr)
	require.True(t, check.Pass)
}

func TestRunIncludesEveryCheck(t *testing.T) {
	loaded := config.Loaded{Path: "/tmp/missing.jsonc", Config: config.Default()}
	loaded.Config.WhisperURL = "http://127.0.0.1:1/v1/audio/transcriptions"
	loaded.Config.OllamaURL = "http://127.0.0.1:1/api/generate"
	loaded.Config.Host = "127.0.0.1"
	loaded.Config.Port = 1

	report := run(context.Background(), loaded, func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
	})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "audio.device", "whisper", "ollama", "listen"}, names)
	require.False(t, report.OK())
}
