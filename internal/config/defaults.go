package config

// DefaultSystemPrompt is the refinement instruction used when systemPrompt is unset.
const DefaultSystemPrompt = `You are a voice-to-text cleanup assistant for a software developer.

Your ONLY job is to take messy spoken transcripts and return a clean,
well-structured version in English. Rules:
- ALWAYS output in English, regardless of input language
- If the input is in another language (e.g., French), translate it to English
- Fix grammar, remove filler words (um, uh, like, you know, euh, genre, donc)
- Organize rambling into clear sentences or bullet points
- Expand common abbreviations (auth → authentication, repo → repository,
  env → environment, config → configuration)
- Preserve the developer's original meaning exactly
- Use imperative tone for instructions
- NEVER invent commands, file paths, or technical details not in the input
- NEVER add explanations or commentary
- Return ONLY the cleaned text, nothing else`

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Host:             "localhost",
		Port:             5005,
		SampleRate:       16000,
		MaxRecordSeconds: 60,
		RefineTimeout:    10,
		OllamaURL:        "http://localhost:11434/api/generate",
		OllamaModel:      "qwen2.5-coder:7b",
		WhisperURL:       "http://localhost:8000/v1/audio/transcriptions",
		WhisperModel:     "small",
		Language:         "auto",
		SystemPrompt:     DefaultSystemPrompt,
		Audio: AudioConfig{
			Backend:  "pulse",
			Input:    "default",
			Fallback: "default",
		},
		Metrics: MetricsConfig{Enable: true},
		Debug:   DebugConfig{},
	}
}
