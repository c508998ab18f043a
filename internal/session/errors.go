package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPipelineUnavailable indicates a collaborator was not wired.
	ErrPipelineUnavailable = errors.New("pipeline collaborator not configured")
	// ErrEmptySpeech indicates the transcriber produced no text for a turn.
	ErrEmptySpeech = errors.New("no speech detected")
	// ErrRefinementTimeout indicates the refinement request exceeded its deadline.
	ErrRefinementTimeout = errors.New("refinement timed out")
	// ErrRefinementUnreachable indicates the refinement service could not be contacted.
	ErrRefinementUnreachable = errors.New("refinement service unreachable")

	errTurnCancelled = errors.New("turn cancelled")
)

// DeviceError reports a capture device that failed to start.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClientMessage maps a turn error to the text sent in an ERROR event.
func ClientMessage(err error) string {
	var deviceErr *DeviceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &deviceErr):
		return "Mic error: " + deviceErr.Err.Error()
	case errors.Is(err, ErrEmptySpeech):
		return "No speech detected"
	case errors.Is(err, ErrRefinementTimeout):
		return "LLM refinement timed out"
	case errors.Is(err, ErrRefinementUnreachable):
		return "Ollama not running, start it with: ollama serve"
	default:
		return err.Error()
	}
}
