package config

import (
	"path/filepath"
	"strings"
)

// Format is a config file syntax.
type Format string

const (
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// FormatFor selects YAML for .yaml/.yml paths and JSONC otherwise. Plain JSON
// is valid JSONC.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONC
	}
}

// Parse applies content onto base and validates the result. Unknown keys are
// reported as warnings and otherwise ignored.
func Parse(content string, format Format, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	var (
		payload filePatch
		raw     map[string]any
		err     error
	)
	switch format {
	case FormatYAML:
		payload, raw, err = decodeYAML(content)
	default:
		payload, raw, err = decodeJSONC(content)
	}
	if err != nil {
		return Config{}, nil, err
	}

	warnings := unknownKeyWarnings(raw)

	cfg := base
	payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}
