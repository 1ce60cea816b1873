package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")

	w, err := NewWAVWriter(path, 16000, 1)
	require.NoError(t, err)

	// One second of silence at 16kHz mono PCM16.
	samples := make([]byte, 16000*2)
	_, err = w.Write(samples)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h, err := ReadWAVHeader(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), h.NumChannels)
	assert.Equal(t, uint32(16000), h.SampleRate)
	assert.Equal(t, uint16(16), h.BitsPerSample)
	assert.Equal(t, uint32(len(samples)), h.Subchunk2Size)
	assert.Equal(t, time.Second, h.Duration())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(wavHeaderSize+len(samples)), info.Size())
}

func TestWAVWriterDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")

	w, err := NewWAVWriter(path, 8000, 2)
	require.NoError(t, err)

	// 250ms at 8kHz stereo: 8000 * 2ch * 2bytes / 4
	_, err = w.Write(make([]byte, 8000))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, w.Duration())
	require.NoError(t, w.Close())
}

func TestReadWAVHeaderRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, err := ReadWAVHeader(path)
	assert.Error(t, err)
}

func TestFrameBytes(t *testing.T) {
	// 100ms of 16kHz mono PCM16 = 16000 * 2 / 10
	assert.Equal(t, 3200, frameBytes(16000, 1, 100))
	// 20ms of 44.1kHz stereo PCM16
	assert.Equal(t, 3520, frameBytes(44100, 2, 20))
}
