package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufferDuration(t *testing.T) {
	buf := Buffer{Samples: make([]int16, 2*DefaultSampleRate), SampleRate: DefaultSampleRate}
	require.Equal(t, 2*time.Second, buf.Duration())
	require.False(t, buf.Empty())

	require.Zero(t, Buffer{Samples: []int16{1}}.Duration())
	require.True(t, Buffer{SampleRate: DefaultSampleRate}.Empty())
}

func TestSamplesFromPCMDropsTrailingOddByte(t *testing.T) {
	require.Equal(t, []int16{2, 256}, samplesFromPCM([]byte{0x02, 0x00, 0x00, 0x01, 0x7f}))
	require.Empty(t, samplesFromPCM(nil))
}
