package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// filePatch mirrors the on-disk keys. Nil fields leave the base value alone.
type filePatch struct {
	Host             *string  `json:"host" yaml:"host"`
	Port             *int     `json:"port" yaml:"port"`
	SampleRate       *int     `json:"sampleRate" yaml:"sampleRate"`
	MaxRecordSeconds *float64 `json:"maxRecordSeconds" yaml:"maxRecordSeconds"`
	RefineTimeout    *float64 `json:"refineTimeout" yaml:"refineTimeout"`

	OllamaURL    *string `json:"ollamaUrl" yaml:"ollamaUrl"`
	OllamaModel  *string `json:"ollamaModel" yaml:"ollamaModel"`
	WhisperURL   *string `json:"whisperUrl" yaml:"whisperUrl"`
	WhisperModel *string `json:"whisperModel" yaml:"whisperModel"`
	Language     *string `json:"language" yaml:"language"`
	SystemPrompt *string `json:"systemPrompt" yaml:"systemPrompt"`

	Audio   *audioPatch   `json:"audio" yaml:"audio"`
	Metrics *metricsPatch `json:"metrics" yaml:"metrics"`
	Debug   *debugPatch   `json:"debug" yaml:"debug"`
}

type audioPatch struct {
	Backend  *string `json:"backend" yaml:"backend"`
	Input    *string `json:"input" yaml:"input"`
	Fallback *string `json:"fallback" yaml:"fallback"`
}

type metricsPatch struct {
	Enable *bool `json:"enable" yaml:"enable"`
}

type debugPatch struct {
	AudioDump *bool `json:"audioDump" yaml:"audioDump"`
}

func (payload filePatch) applyTo(cfg *Config) {
	setString(&cfg.Host, payload.Host)
	if payload.Port != nil {
		cfg.Port = *payload.Port
	}
	if payload.SampleRate != nil {
		cfg.SampleRate = *payload.SampleRate
	}
	if payload.MaxRecordSeconds != nil {
		cfg.MaxRecordSeconds = *payload.MaxRecordSeconds
	}
	if payload.RefineTimeout != nil {
		cfg.RefineTimeout = *payload.RefineTimeout
	}

	setString(&cfg.OllamaURL, payload.OllamaURL)
	setString(&cfg.OllamaModel, payload.OllamaModel)
	setString(&cfg.WhisperURL, payload.WhisperURL)
	setString(&cfg.WhisperModel, payload.WhisperModel)
	setString(&cfg.Language, payload.Language)

	// An empty or null prompt keeps the built-in instruction.
	if payload.SystemPrompt != nil && strings.TrimSpace(*payload.SystemPrompt) != "" {
		cfg.SystemPrompt = *payload.SystemPrompt
	}

	if payload.Audio != nil {
		setString(&cfg.Audio.Backend, payload.Audio.Backend)
		setString(&cfg.Audio.Input, payload.Audio.Input)
		setString(&cfg.Audio.Fallback, payload.Audio.Fallback)
	}
	if payload.Metrics != nil && payload.Metrics.Enable != nil {
		cfg.Metrics.Enable = *payload.Metrics.Enable
	}
	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

// unknownKeyWarnings reports keys in raw that filePatch does not recognize.
func unknownKeyWarnings(raw map[string]any) []Warning {
	unknown := unknownKeys(raw, reflect.TypeOf(filePatch{}), "")
	sort.Strings(unknown)

	warnings := make([]Warning, 0, len(unknown))
	for _, key := range unknown {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown config key %q ignored", key)})
	}
	return warnings
}

func unknownKeys(raw map[string]any, patchType reflect.Type, prefix string) []string {
	fields := make(map[string]reflect.Type, patchType.NumField())
	for i := 0; i < patchType.NumField(); i++ {
		field := patchType.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		fields[name] = field.Type
	}

	var unknown []string
	for key, value := range raw {
		fieldType, ok := fields[key]
		if !ok {
			unknown = append(unknown, prefix+key)
			continue
		}
		nested, isMap := value.(map[string]any)
		if isMap && fieldType.Kind() == reflect.Pointer && fieldType.Elem().Kind() == reflect.Struct {
			unknown = append(unknown, unknownKeys(nested, fieldType.Elem(), prefix+key+".")...)
		}
	}
	return unknown
}
