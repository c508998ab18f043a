package audio

import (
	"encoding/binary"
	"time"
)

// DefaultSampleRate is the capture rate expected by Whisper models.
const DefaultSampleRate = 16000

// Buffer is one turn of captured mono s16 audio.
type Buffer struct {
	Samples    []int16
	SampleRate int
}

// Empty reports whether no samples were captured.
func (b Buffer) Empty() bool {
	return len(b.Samples) == 0
}

// Duration returns the captured audio length.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// samplesFromPCM decodes little-endian s16 PCM; a trailing odd byte is dropped.
func samplesFromPCM(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}
