package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Backend names accepted by audio.backend.
const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
)

// Options configures one turn recorder.
type Options struct {
	Backend    string
	Input      string
	Fallback   string
	SampleRate int
}

// Recorder captures one turn of audio. Start is idempotent while started and
// Stop is safe to call when nothing was started.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() Buffer
}

// Factory builds a fresh Recorder for each connection.
type Factory func() Recorder

// NewFactory validates opts once and returns a constructor for the configured backend.
func NewFactory(opts Options, logger *slog.Logger) (Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendPulse:
		return func() Recorder { return newPulseRecorder(opts, logger) }, nil
	case BackendPortAudio:
		if _, err := newPortAudioRecorder(opts, logger); err != nil {
			return nil, err
		}
		return func() Recorder {
			rec, _ := newPortAudioRecorder(opts, logger)
			return rec
		}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", opts.Backend)
	}
}

// capturer is the subset of *Capture used by pulseRecorder.
type capturer interface {
	Device() Device
	Buffer() Buffer
	Stop() error
}

// pulseRecorder resolves the input device on every Start so hot-plugged
// microphones are picked up between turns.
type pulseRecorder struct {
	opts   Options
	logger *slog.Logger

	selectDevice func(ctx context.Context, input string, fallback string) (Selection, error)
	startCapture func(ctx context.Context, device Device, sampleRate int) (capturer, error)

	mu      sync.Mutex
	capture capturer
}

func newPulseRecorder(opts Options, logger *slog.Logger) *pulseRecorder {
	return &pulseRecorder{
		opts:         opts,
		logger:       logger,
		selectDevice: SelectDevice,
		startCapture: func(ctx context.Context, device Device, sampleRate int) (capturer, error) {
			return StartCapture(ctx, device, sampleRate)
		},
	}
}

func (r *pulseRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capture != nil {
		return nil
	}

	selection, err := r.selectDevice(ctx, r.opts.Input, r.opts.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		r.logger.Warn(selection.Warning)
	}

	capture, err := r.startCapture(ctx, selection.Device, r.opts.SampleRate)
	if err != nil {
		return err
	}
	r.capture = capture

	r.logger.Debug("capture started",
		"device", selection.Device.ID,
		"device_description", selection.Device.Description,
		"fallback", selection.Fallback,
	)
	return nil
}

func (r *pulseRecorder) Stop() Buffer {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.mu.Unlock()

	if capture == nil {
		return Buffer{SampleRate: r.opts.SampleRate}
	}
	if err := capture.Stop(); err != nil {
		r.logger.Warn("stop capture", "device", capture.Device().ID, "error", err.Error())
	}
	return capture.Buffer()
}
