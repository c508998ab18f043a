package session

import (
	"context"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/protocol"
)

// Recorder is the capture device contract. Start is idempotent while started
// and Stop returns everything captured since Start (empty when not started).
type Recorder interface {
	Start(context.Context) error
	Stop() audio.Buffer
}

// Transcriber converts one turn of audio into raw text. Blocking.
type Transcriber interface {
	Transcribe(context.Context, audio.Buffer) (string, error)
}

// Refiner cleans up raw transcript text. Blocking; errors wrap
// ErrRefinementTimeout or ErrRefinementUnreachable where applicable.
type Refiner interface {
	Refine(context.Context, string) (string, error)
}

// Sender delivers one outbound event to the client.
type Sender interface {
	Send(protocol.Event) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(protocol.Event) error

func (f SenderFunc) Send(event protocol.Event) error {
	return f(event)
}

// Outcome labels how a turn ended.
type Outcome string

const (
	OutcomeFinalPrompt Outcome = "final_prompt"
	OutcomeNoSpeech    Outcome = "no_speech"
	OutcomeMicError    Outcome = "mic_error"
	OutcomeError       Outcome = "error"
	OutcomeCancelled   Outcome = "cancelled"
)

// Observer receives turn lifecycle signals, typically for metrics.
type Observer interface {
	TurnFinished(Outcome)
	AutoStopped()
	Recorded(time.Duration)
}

type noopObserver struct{}

func (noopObserver) TurnFinished(Outcome)   {}
func (noopObserver) AutoStopped()           {}
func (noopObserver) Recorded(time.Duration) {}

type unavailableRecorder struct{}

func (unavailableRecorder) Start(context.Context) error { return ErrPipelineUnavailable }
func (unavailableRecorder) Stop() audio.Buffer          { return audio.Buffer{} }

type unavailableTranscriber struct{}

func (unavailableTranscriber) Transcribe(context.Context, audio.Buffer) (string, error) {
	return "", ErrPipelineUnavailable
}

type unavailableRefiner struct{}

func (unavailableRefiner) Refine(context.Context, string) (string, error) {
	return "", ErrPipelineUnavailable
}
