//go:build integration

package audio

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPulseDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	selection, err := SelectDevice(ctx, "default", "default")
	require.NoError(t, err)
	require.NotEmpty(t, selection.Device.ID)
}

func TestPulseRecorderIntegration(t *testing.T) {
	factory, err := NewFactory(Options{Backend: BackendPulse, Input: "default", Fallback: "default"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	rec := factory()
	require.NoError(t, rec.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	buf := rec.Stop()

	require.Equal(t, DefaultSampleRate, buf.SampleRate)
	require.NotEmpty(t, buf.Samples)
	require.Empty(t, rec.Stop().Samples)
}
