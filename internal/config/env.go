package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvHost         = "VOICEBRIDGE_HOST"
	EnvPort         = "VOICEBRIDGE_PORT"
	EnvOllamaURL    = "VOICEBRIDGE_OLLAMA_URL"
	EnvOllamaModel  = "VOICEBRIDGE_OLLAMA_MODEL"
	EnvWhisperURL   = "VOICEBRIDGE_WHISPER_URL"
	EnvWhisperModel = "VOICEBRIDGE_WHISPER_MODEL"
	EnvLanguage     = "VOICEBRIDGE_LANGUAGE"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnv overlays VOICEBRIDGE_* variables onto cfg. Invalid values are
// reported as warnings and ignored.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, []Warning) {
	warnings := make([]Warning, 0)

	stringVars := []struct {
		name string
		dst  *string
		url  bool
	}{
		{EnvHost, &cfg.Host, false},
		{EnvOllamaURL, &cfg.OllamaURL, true},
		{EnvOllamaModel, &cfg.OllamaModel, false},
		{EnvWhisperURL, &cfg.WhisperURL, true},
		{EnvWhisperModel, &cfg.WhisperModel, false},
		{EnvLanguage, &cfg.Language, false},
	}
	for _, v := range stringVars {
		value, ok := lookup(v.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s is empty; ignored", v.name)})
			continue
		}
		if v.url {
			if err := validateHTTPURL(v.name, value); err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("%v; ignored", err)})
				continue
			}
		}
		*v.dst = value
	}

	if value, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || port < 1 || port > 65535 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s=%q is not a valid port; ignored", EnvPort, value)})
		} else {
			cfg.Port = port
		}
	}

	return cfg, warnings
}
