package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteWAVHeaderAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	buf := Buffer{Samples: []int16{0, 1000, -1000, 32767}, SampleRate: DefaultSampleRate}
	require.NoError(t, WriteWAV(f, buf))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44+2*len(buf.Samples))
	require.Equal(t, []byte("RIFF"), data[0:4])
	require.Equal(t, []byte("WAVE"), data[8:12])
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	require.Equal(t, uint32(DefaultSampleRate), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(data[34:36]))
	require.Equal(t, int16(-1000), int16(binary.LittleEndian.Uint16(data[48:50])))
	require.True(t, bytes.Equal([]byte("data"), data[36:40]))
}

func TestWriteWAVRejectsMissingSampleRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	require.NoError(t, err)
	defer f.Close()

	err = WriteWAV(f, Buffer{Samples: []int16{1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sample rate")
}

func TestEncodeWAVInMemoryMatchesFile(t *testing.T) {
	buf := Buffer{Samples: []int16{5, -5, 12}, SampleRate: 8000}

	data, err := EncodeWAV(buf)
	require.NoError(t, err)
	require.Len(t, data, 44+6)
	require.Equal(t, uint32(len(data)-8), binary.LittleEndian.Uint32(data[4:8]))
	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, uint32(8000), binary.LittleEndian.Uint32(data[24:28]))
}

func TestWriteSeekerOverwritesAfterSeek(t *testing.T) {
	ws := &writeSeeker{}
	_, err := ws.Write([]byte("abcdef"))
	require.NoError(t, err)

	pos, err := ws.Seek(2, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), pos)

	_, err = ws.Write([]byte("XY"))
	require.NoError(t, err)
	require.Equal(t, []byte("abXYef"), ws.buf)

	_, err = ws.Seek(-1, 0)
	require.Error(t, err)
}
