package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// Fallback is set when the file existed but could not be used.
	Fallback bool
}

// Load resolves, reads, parses, and validates the runtime configuration, then
// applies environment overrides. Missing, unreadable, or invalid files fall
// back to defaults with a warning; only path resolution failures are errors.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := loadFile(resolvedPath)

	cfg, envWarnings := ApplyEnv(loaded.Config, os.LookupEnv)
	if _, err := Validate(cfg); err != nil {
		loaded.Warnings = append(loaded.Warnings, Warning{Message: fmt.Sprintf("environment overrides rejected: %v", err)})
	} else {
		loaded.Config = cfg
		loaded.Warnings = append(loaded.Warnings, envWarnings...)
	}
	return loaded, nil
}

func loadFile(path string) Loaded {
	base := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		message := fmt.Sprintf("read config %q: %v; using defaults", path, err)
		exists := true
		if errors.Is(err, os.ErrNotExist) {
			message = fmt.Sprintf("config file %q not found; using defaults", path)
			exists = false
		}
		return Loaded{
			Path:     path,
			Config:   base,
			Warnings: []Warning{{Message: message}},
			Exists:   exists,
			Fallback: exists,
		}
	}

	cfg, warnings, err := Parse(string(content), FormatFor(path), base)
	if err != nil {
		return Loaded{
			Path:     path,
			Config:   base,
			Warnings: []Warning{{Message: fmt.Sprintf("invalid config %q: %v; using defaults", path, err)}},
			Exists:   true,
			Fallback: true,
		}
	}

	return Loaded{
		Path:     path,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}
}
