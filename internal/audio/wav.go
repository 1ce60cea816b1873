package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16 // PCM16 throughout
)

// WAVHeader represents a WAV file header
type WAVHeader struct {
	// RIFF chunk descriptor
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32  // 4 + (8 + Subchunk1Size) + (8 + Subchunk2Size)
	Format    [4]byte // "WAVE"

	// "fmt " sub-chunk
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // 1 for mono, 2 for stereo
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16 // NumChannels * BitsPerSample/8
	BitsPerSample uint16

	// "data" sub-chunk
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // NumSamples * NumChannels * BitsPerSample/8
}

// Duration returns the playing time of the data chunk.
func (h *WAVHeader) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(h.Subchunk2Size) / float64(h.ByteRate) * float64(time.Second))
}

func encodeHeader(sampleRate, channels int, dataSize uint32) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	header := WAVHeader{
		ChunkID:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: 36 + dataSize,
		Format:    [4]byte{'W', 'A', 'V', 'E'},

		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      byteRate,
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,

		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := make([]byte, wavHeaderSize)
	copy(buf[0:4], header.ChunkID[:])
	binary.LittleEndian.PutUint32(buf[4:8], header.ChunkSize)
	copy(buf[8:12], header.Format[:])
	copy(buf[12:16], header.Subchunk1ID[:])
	binary.LittleEndian.PutUint32(buf[16:20], header.Subchunk1Size)
	binary.LittleEndian.PutUint16(buf[20:22], header.AudioFormat)
	binary.LittleEndian.PutUint16(buf[22:24], header.NumChannels)
	binary.LittleEndian.PutUint32(buf[24:28], header.SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], header.ByteRate)
	binary.LittleEndian.PutUint16(buf[32:34], header.BlockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], header.BitsPerSample)
	copy(buf[36:40], header.Subchunk2ID[:])
	binary.LittleEndian.PutUint32(buf[40:44], header.Subchunk2Size)
	return buf
}

// WAVWriter writes PCM16 samples to a WAV file. The header is written with
// zero data size up front and patched on Close, so a crash mid-capture
// leaves a recognisable (if truncated) file rather than raw PCM.
type WAVWriter struct {
	file       *os.File
	sampleRate int
	channels   int
	dataSize   uint32
}

// NewWAVWriter creates the file and writes the provisional header.
func NewWAVWriter(path string, sampleRate, channels int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}
	if _, err := f.Write(encodeHeader(sampleRate, channels, 0)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return &WAVWriter{file: f, sampleRate: sampleRate, channels: channels}, nil
}

// Write appends raw PCM16 sample data.
func (w *WAVWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.dataSize += uint32(n)
	if err != nil {
		return n, fmt.Errorf("failed to write samples: %w", err)
	}
	return n, nil
}

// DataSize returns the number of sample bytes written so far.
func (w *WAVWriter) DataSize() uint32 {
	return w.dataSize
}

// Duration returns the playing time of the samples written so far.
func (w *WAVWriter) Duration() time.Duration {
	byteRate := w.sampleRate * w.channels * bitsPerSample / 8
	if byteRate == 0 {
		return 0
	}
	return time.Duration(float64(w.dataSize) / float64(byteRate) * float64(time.Second))
}

// Close patches the header with the final sizes, flushes and closes the file.
func (w *WAVWriter) Close() error {
	if _, err := w.file.WriteAt(encodeHeader(w.sampleRate, w.channels, w.dataSize), 0); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync WAV file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close WAV file: %w", err)
	}
	return nil
}

// ReadWAVHeader reads and validates the header of an existing WAV file.
func ReadWAVHeader(path string) (*WAVHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	var h WAVHeader
	copy(h.ChunkID[:], buf[0:4])
	h.ChunkSize = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.Format[:], buf[8:12])
	copy(h.Subchunk1ID[:], buf[12:16])
	h.Subchunk1Size = binary.LittleEndian.Uint32(buf[16:20])
	h.AudioFormat = binary.LittleEndian.Uint16(buf[20:22])
	h.NumChannels = binary.LittleEndian.Uint16(buf[22:24])
	h.SampleRate = binary.LittleEndian.Uint32(buf[24:28])
	h.ByteRate = binary.LittleEndian.Uint32(buf[28:32])
	h.BlockAlign = binary.LittleEndian.Uint16(buf[32:34])
	h.BitsPerSample = binary.LittleEndian.Uint16(buf[34:36])
	copy(h.Subchunk2ID[:], buf[36:40])
	h.Subchunk2Size = binary.LittleEndian.Uint32(buf[40:44])

	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV file: %s", path)
	}
	return &h, nil
}
