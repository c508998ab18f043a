// Package pipeline assembles the per-process capture, transcription, and
// refinement stages from runtime config.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/config"
	"github.com/rbright/voicebridge/internal/ollama"
	"github.com/rbright/voicebridge/internal/session"
	"github.com/rbright/voicebridge/internal/whisper"
)

// Observer receives stage latencies, typically for metrics.
type Observer interface {
	ObserveTranscription(time.Duration, error)
	ObserveRefinement(time.Duration, error)
}

type noopObserver struct{}

func (noopObserver) ObserveTranscription(time.Duration, error) {}
func (noopObserver) ObserveRefinement(time.Duration, error)    {}

// Stages holds the shared clients and the per-connection recorder factory.
type Stages struct {
	Whisper     *whisper.Client
	Ollama      *ollama.Client
	Transcriber session.Transcriber
	Refiner     session.Refiner
	Recorders   audio.Factory

	maxRecord time.Duration
	observer  session.Observer
}

// Build validates cfg into ready-to-use stages. observer may be nil.
// sessionObserver is attached to every session created by NewSession and may
// be nil.
func Build(cfg config.Config, observer Observer, sessionObserver session.Observer, logger *slog.Logger) (*Stages, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if observer == nil {
		observer = noopObserver{}
	}

	whisperClient, err := whisper.New(whisper.Config{
		URL:      cfg.WhisperURL,
		Model:    cfg.WhisperModel,
		Language: cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("build whisper client: %w", err)
	}

	ollamaClient, err := ollama.New(ollama.Config{
		URL:          cfg.OllamaURL,
		Model:        cfg.OllamaModel,
		SystemPrompt: cfg.SystemPrompt,
		Timeout:      cfg.RefineTimeoutDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("build ollama client: %w", err)
	}

	recorders, err := audio.NewFactory(audio.Options{
		Backend:    cfg.Audio.Backend,
		Input:      cfg.Audio.Input,
		Fallback:   cfg.Audio.Fallback,
		SampleRate: cfg.SampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build recorder: %w", err)
	}

	return &Stages{
		Whisper: whisperClient,
		Ollama:  ollamaClient,
		Transcriber: &instrumentedTranscriber{
			next:      whisperClient,
			observer:  observer,
			dumpAudio: cfg.Debug.EnableAudioDump,
			logger:    logger,
		},
		Refiner: &instrumentedRefiner{
			next:     ollamaClient,
			observer: observer,
			logger:   logger,
		},
		Recorders: recorders,
		maxRecord: cfg.MaxRecord(),
		observer:  sessionObserver,
	}, nil
}

// NewSession creates an idle session bound to ctx with a fresh recorder.
func (s *Stages) NewSession(ctx context.Context, sender session.Sender, logger *slog.Logger) *session.Session {
	opts := session.Options{
		Logger:      logger,
		MaxRecord:   s.maxRecord,
		Transcriber: s.Transcriber,
		Refiner:     s.Refiner,
		Sender:      sender,
		Observer:    s.observer,
	}
	if s.Recorders != nil {
		opts.Recorder = s.Recorders()
	}
	return session.New(ctx, opts)
}

type instrumentedTranscriber struct {
	next      session.Transcriber
	observer  Observer
	dumpAudio bool
	logger    *slog.Logger
}

func (t *instrumentedTranscriber) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if t.dumpAudio {
		t.writeDebugAudio(buf)
	}

	started := time.Now()
	text, err := t.next.Transcribe(ctx, buf)
	elapsed := time.Since(started)
	t.observer.ObserveTranscription(elapsed, err)

	t.logger.Debug("transcription finished",
		"latency_ms", elapsed.Milliseconds(),
		"audio_ms", buf.Duration().Milliseconds(),
		"chars", len(text),
		"error", errString(err),
	)
	return text, err
}

// writeDebugAudio writes the turn's samples to WAV under the debug dir.
func (t *instrumentedTranscriber) writeDebugAudio(buf audio.Buffer) {
	if buf.Empty() {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		t.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()

	if err := audio.WriteWAV(file, buf); err != nil {
		t.logger.Warn("unable to write debug audio dump", "path", file.Name(), "error", err)
		return
	}
	t.logger.Debug("debug audio dump written", "path", file.Name())
}

type instrumentedRefiner struct {
	next     session.Refiner
	observer Observer
	logger   *slog.Logger
}

func (r *instrumentedRefiner) Refine(ctx context.Context, text string) (string, error) {
	started := time.Now()
	refined, err := r.next.Refine(ctx, text)
	elapsed := time.Since(started)
	r.observer.ObserveRefinement(elapsed, err)

	r.logger.Debug("refinement finished",
		"latency_ms", elapsed.Milliseconds(),
		"input_chars", len(text),
		"output_chars", len(refined),
		"error", errString(err),
	)
	return refined, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
