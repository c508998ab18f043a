// Package config resolves, parses, validates, and defaults voicebridge configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the fully materialized runtime configuration used by voicebridge.
type Config struct {
	Host             string
	Port             int
	SampleRate       int
	MaxRecordSeconds float64
	RefineTimeout    float64

	OllamaURL    string
	OllamaModel  string
	WhisperURL   string
	WhisperModel string
	Language     string
	SystemPrompt string

	Audio   AudioConfig
	Metrics MetricsConfig
	Debug   DebugConfig
}

// AudioConfig controls the capture backend and input-source selection.
type AudioConfig struct {
	Backend  string
	Input    string
	Fallback string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxRecord returns the auto-stop duration for one recording.
func (c Config) MaxRecord() time.Duration {
	return secondsToDuration(c.MaxRecordSeconds)
}

// RefineTimeoutDuration returns the refinement request deadline.
func (c Config) RefineTimeoutDuration() time.Duration {
	return secondsToDuration(c.RefineTimeout)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
