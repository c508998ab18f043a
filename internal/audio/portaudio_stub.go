//go:build !portaudio

package audio

import (
	"errors"
	"log/slog"
)

func newPortAudioRecorder(_ Options, _ *slog.Logger) (Recorder, error) {
	return nil, errors.New("portaudio backend not compiled in; rebuild with -tags portaudio")
}
