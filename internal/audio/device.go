package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// DeviceError indicates the capture device could not be opened or failed
// mid-capture. It is fatal for the current run only; the device is
// re-probed on the next Start.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Device is an opened capture stream. Read delivers raw PCM16 little-endian
// sample data; Close releases the device handle and unblocks any pending
// Read.
type Device interface {
	io.ReadCloser
	SampleRate() int
	Channels() int
}

// Opener opens the capture device. The physical driver lives behind this
// interface so the recorder can be tested without hardware.
type Opener interface {
	Open(ctx context.Context) (Device, error)
}

// FFmpegOpener captures from an ALSA device by running ffmpeg with raw
// s16le output on stdout.
type FFmpegOpener struct {
	FFmpegPath string
	DeviceName string // e.g. "hw:1,0" for a USB audio adapter
	Rate       int
	Chans      int
	Logger     *logger.Logger
}

// Open starts the ffmpeg capture process.
func (o *FFmpegOpener) Open(ctx context.Context) (Device, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "alsa",
		"-channels", strconv.Itoa(o.Chans),
		"-sample_rate", strconv.Itoa(o.Rate),
		"-i", o.DeviceName,
		"-f", "s16le",
		"-ar", strconv.Itoa(o.Rate),
		"-ac", strconv.Itoa(o.Chans),
		"-",
	}

	cmd := exec.CommandContext(ctx, o.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Device: o.DeviceName, Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Device: o.DeviceName, Err: fmt.Errorf("failed to start %s: %w", o.FFmpegPath, err)}
	}

	o.Logger.Debug("Opened capture device",
		logger.String("device", o.DeviceName),
		logger.Int("sample_rate", o.Rate),
		logger.Int("channels", o.Chans),
	)

	return &ffmpegDevice{
		reader: stdout,
		cmd:    cmd,
		rate:   o.Rate,
		chans:  o.Chans,
	}, nil
}

type ffmpegDevice struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
	rate   int
	chans  int
}

func (d *ffmpegDevice) Read(p []byte) (int, error) { return d.reader.Read(p) }
func (d *ffmpegDevice) SampleRate() int            { return d.rate }
func (d *ffmpegDevice) Channels() int              { return d.chans }

// Close kills the capture process and reaps it. The kill unblocks any
// reader waiting on the next frame.
func (d *ffmpegDevice) Close() error {
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.reader.Close()
	// Wait returns the kill error; the process exiting is all we need.
	_ = d.cmd.Wait()
	return nil
}

// frameBytes returns the size in bytes of one capture chunk.
// For PCM16, each sample is 2 bytes.
func frameBytes(sampleRate, channels, chunkMs int) int {
	bytesPerMs := (sampleRate * channels * 2) / 1000
	return bytesPerMs * chunkMs
}
