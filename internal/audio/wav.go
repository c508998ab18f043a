package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WriteWAV encodes buf as a 16-bit mono PCM WAV stream.
func WriteWAV(w io.WriteSeeker, buf Buffer) error {
	if buf.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", buf.SampleRate)
	}

	enc := wav.NewEncoder(w, buf.SampleRate, wavBitDepth, 1, 1)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(s)
	}

	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	})
	if closeErr := enc.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// EncodeWAV returns buf as an in-memory WAV file.
func EncodeWAV(buf Buffer) ([]byte, error) {
	ws := &writeSeeker{}
	if err := WriteWAV(ws, buf); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is the in-memory io.WriteSeeker the wav encoder needs to patch its header.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = len(w.buf)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = next
	return int64(next), nil
}
