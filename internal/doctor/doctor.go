// Package doctor runs runtime readiness diagnostics for config, audio, the
// transcription server, the refinement server, and the listen address.
package doctor

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/config"
	"github.com/rbright/voicebridge/internal/ollama"
	"github.com/rbright/voicebridge/internal/whisper"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

type selectFunc func(ctx context.Context, input string, fallback string) (audio.Selection, error)

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	return run(ctx, loaded, audio.SelectDevice)
}

func run(ctx context.Context, loaded config.Loaded, selectDevice selectFunc) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkAudio(ctx, cfg, selectDevice))
	checks = append(checks, checkWhisper(ctx, cfg))
	checks = append(checks, checkOllama(ctx, cfg)...)
	checks = append(checks, checkListenAddr(cfg.Addr()))

	return Report{Checks: checks}
}

// checkConfig fails when a config file existed but was replaced by defaults.
func checkConfig(loaded config.Loaded) Check {
	switch {
	case loaded.Fallback:
		message := fmt.Sprintf("%q unusable; running on defaults", loaded.Path)
		if len(loaded.Warnings) > 0 {
			message = loaded.Warnings[0].Message
		}
		return Check{Name: "config", Pass: false, Message: message}
	case !loaded.Exists:
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	default:
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
	}
}

// checkAudio validates the backend and, for pulse, runs live device selection
// to surface selection/fallback issues.
func checkAudio(ctx context.Context, cfg config.Config, selectDevice selectFunc) Check {
	if _, err := audio.NewFactory(audio.Options{
		Backend:    cfg.Audio.Backend,
		Input:      cfg.Audio.Input,
		Fallback:   cfg.Audio.Fallback,
		SampleRate: cfg.SampleRate,
	}, nil); err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	if !strings.EqualFold(strings.TrimSpace(cfg.Audio.Backend), audio.BackendPulse) {
		return Check{Name: "audio.device", Pass: true, Message: "portaudio uses the system default input"}
	}

	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkWhisper probes the transcription endpoint for any HTTP answer.
func checkWhisper(ctx context.Context, cfg config.Config) Check {
	client, err := whisper.New(whisper.Config{URL: cfg.WhisperURL, Model: cfg.WhisperModel, Timeout: probeTimeout})
	if err != nil {
		return Check{Name: "whisper", Pass: false, Message: err.Error()}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		return Check{Name: "whisper", Pass: false, Message: fmt.Sprintf("%s unreachable: %v", cfg.WhisperURL, err)}
	}
	return Check{Name: "whisper", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.WhisperURL)}
}

// checkOllama verifies the server answers and has the configured model pulled.
func checkOllama(ctx context.Context, cfg config.Config) []Check {
	client, err := ollama.New(ollama.Config{URL: cfg.OllamaURL, Model: cfg.OllamaModel, Timeout: probeTimeout})
	if err != nil {
		return []Check{{Name: "ollama", Pass: false, Message: err.Error()}}
	}

	models, err := client.Models(ctx)
	if err != nil {
		return []Check{
			{Name: "ollama", Pass: false, Message: fmt.Sprintf("%v; start it with: ollama serve", err)},
		}
	}

	checks := []Check{{Name: "ollama", Pass: true, Message: fmt.Sprintf("%d model(s) available", len(models))}}
	if hasModel(models, client.Model()) {
		checks = append(checks, Check{Name: "ollama.model", Pass: true, Message: fmt.Sprintf("%q is pulled", client.Model())})
	} else {
		checks = append(checks, Check{
			Name:    "ollama.model",
			Pass:    false,
			Message: fmt.Sprintf("%q not found; pull it with: ollama pull %s", client.Model(), client.Model()),
		})
	}
	return checks
}

// hasModel matches an untagged model name against its ":latest" listing.
func hasModel(models []string, want string) bool {
	if slices.Contains(models, want) {
		return true
	}
	if !strings.Contains(want, ":") {
		return slices.Contains(models, want+":latest")
	}
	return false
}

// checkListenAddr reports whether serve could bind the configured address.
func checkListenAddr(addr string) Check {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "listen", Pass: false, Message: fmt.Sprintf("cannot listen on %s: %v (is the bridge already running?)", addr, err)}
	}
	_ = listener.Close()
	return Check{Name: "listen", Pass: true, Message: fmt.Sprintf("%s is free", addr)}
}
