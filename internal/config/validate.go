package config

import (
	"fmt"
	"net/url"
	"strings"
)

// maxDurationSeconds caps second-valued keys well below time.Duration overflow.
const maxDurationSeconds = 24 * 60 * 60

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("host must not be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 48000 {
		return nil, fmt.Errorf("sampleRate must be between 8000 and 48000, got %d", cfg.SampleRate)
	}
	if cfg.MaxRecordSeconds <= 0 || cfg.MaxRecordSeconds > maxDurationSeconds {
		return nil, fmt.Errorf("maxRecordSeconds must be > 0 and <= %d, got %g", maxDurationSeconds, cfg.MaxRecordSeconds)
	}
	if cfg.RefineTimeout <= 0 || cfg.RefineTimeout > maxDurationSeconds {
		return nil, fmt.Errorf("refineTimeout must be > 0 and <= %d, got %g", maxDurationSeconds, cfg.RefineTimeout)
	}
	if err := validateHTTPURL("ollamaUrl", cfg.OllamaURL); err != nil {
		return nil, err
	}
	if err := validateHTTPURL("whisperUrl", cfg.WhisperURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.OllamaModel) == "" {
		return nil, fmt.Errorf("ollamaModel must not be empty")
	}
	if strings.TrimSpace(cfg.WhisperModel) == "" {
		return nil, fmt.Errorf("whisperModel must not be empty")
	}
	if strings.TrimSpace(cfg.Language) == "" {
		return nil, fmt.Errorf("language must not be empty; use \"auto\" for detection")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if backend != "pulse" && backend != "portaudio" {
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}

	if cfg.SampleRate != 16000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("sampleRate %d differs from the 16000 Hz Whisper models expect", cfg.SampleRate)})
	}
	switch strings.TrimSpace(cfg.Host) {
	case "0.0.0.0", "::", "[::]":
		warnings = append(warnings, Warning{Message: fmt.Sprintf("host %q listens on all interfaces and the bridge has no authentication", cfg.Host)})
	}

	return warnings, nil
}

func validateHTTPURL(key string, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
