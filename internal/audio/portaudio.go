//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const portAudioFramesPerBuffer = 320 // 20ms @ 16kHz

// portAudioRecorder captures from the default input device through PortAudio.
type portAudioRecorder struct {
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream

	samplesMu sync.Mutex
	samples   []int16
}

func newPortAudioRecorder(opts Options, logger *slog.Logger) (Recorder, error) {
	if opts.Input != "" && opts.Input != "default" {
		logger.Warn("portaudio backend ignores audio.input; using the default input device", "input", opts.Input)
	}
	return &portAudioRecorder{sampleRate: opts.SampleRate, logger: logger}, nil
}

func (r *portAudioRecorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	r.samplesMu.Lock()
	r.samples = nil
	r.samplesMu.Unlock()

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), portAudioFramesPerBuffer, r.onSamples)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open default input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	r.stream = stream
	r.logger.Debug("capture started", "backend", BackendPortAudio, "sample_rate", r.sampleRate)
	return nil
}

func (r *portAudioRecorder) Stop() Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			r.logger.Warn("stop portaudio stream", "error", err.Error())
		}
		if err := r.stream.Close(); err != nil {
			r.logger.Warn("close portaudio stream", "error", err.Error())
		}
		if err := portaudio.Terminate(); err != nil {
			r.logger.Warn("terminate portaudio", "error", err.Error())
		}
		r.stream = nil
	}

	r.samplesMu.Lock()
	samples := r.samples
	r.samples = nil
	r.samplesMu.Unlock()

	return Buffer{Samples: samples, SampleRate: r.sampleRate}
}

// onSamples runs on the PortAudio callback thread; in is reused between calls.
func (r *portAudioRecorder) onSamples(in []int16) {
	r.samplesMu.Lock()
	r.samples = append(r.samples, in...)
	r.samplesMu.Unlock()
}
