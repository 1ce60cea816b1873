package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// pipeDevice is an in-memory capture device fed by the test.
type pipeDevice struct {
	r     *io.PipeReader
	w     *io.PipeWriter
	rate  int
	chans int
}

func newPipeDevice(rate, chans int) *pipeDevice {
	r, w := io.Pipe()
	return &pipeDevice{r: r, w: w, rate: rate, chans: chans}
}

func (d *pipeDevice) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *pipeDevice) SampleRate() int            { return d.rate }
func (d *pipeDevice) Channels() int              { return d.chans }

func (d *pipeDevice) Close() error {
	d.w.Close()
	return d.r.Close()
}

// feed writes ms milliseconds worth of PCM16 silence to the device.
func (d *pipeDevice) feed(t *testing.T, ms int) {
	t.Helper()
	data := make([]byte, frameBytes(d.rate, d.chans, ms))
	if _, err := d.w.Write(data); err != nil {
		t.Fatalf("feed: %v", err)
	}
}

type fakeOpener struct {
	device  Device
	openErr error
	opens   int
}

func (o *fakeOpener) Open(ctx context.Context) (Device, error) {
	o.opens++
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.device, nil
}

func newTestRecorder(t *testing.T, opener Opener) *Recorder {
	t.Helper()
	return NewRecorder(opener, RecorderConfig{
		OutputDir: t.TempDir(),
		ChunkMs:   10,
	}, logger.Nop())
}

func TestRecorderCapturesAndFinalizes(t *testing.T) {
	device := newPipeDevice(16000, 1)
	rec := newTestRecorder(t, &fakeOpener{device: device})

	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, StateArmed, rec.State())

	device.feed(t, 500)

	// Wait for the read loop to consume the frames.
	require.Eventually(t, func() bool {
		return rec.State() == StateCapturing && rec.Elapsed() >= 500*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	recording, err := rec.Stop()
	require.NoError(t, err)
	require.NotNil(t, recording)

	// Duration equals elapsed capture time (± one frame).
	assert.InDelta(t, 500*time.Millisecond, recording.Duration, float64(10*time.Millisecond))
	assert.Equal(t, 16000, recording.SampleRate)
	assert.Equal(t, 1, recording.Channels)
	assert.Equal(t, recording.StartedAt.Add(recording.Duration), recording.EndedAt)

	// Artifact is fully flushed with a consistent header.
	h, err := ReadWAVHeader(recording.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, recording.Duration, h.Duration())

	// Recorder is ready for the next call.
	assert.Equal(t, StateIdle, rec.State())
}

func TestRecorderZeroFramesYieldsNoRecording(t *testing.T) {
	device := newPipeDevice(16000, 1)
	rec := newTestRecorder(t, &fakeOpener{device: device})

	require.NoError(t, rec.Start(context.Background()))

	recording, err := rec.Stop()
	require.NoError(t, err)
	assert.Nil(t, recording, "a capture with zero frames is an empty run")
	assert.Equal(t, StateIdle, rec.State())
}

func TestRecorderReentrantStart(t *testing.T) {
	device := newPipeDevice(16000, 1)
	rec := newTestRecorder(t, &fakeOpener{device: device})

	require.NoError(t, rec.Start(context.Background()))
	err := rec.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = rec.Stop()
	require.NoError(t, err)
}

func TestRecorderDeviceOpenFailure(t *testing.T) {
	opener := &fakeOpener{openErr: &DeviceError{Device: "hw:1,0", Err: errors.New("no such device")}}
	rec := newTestRecorder(t, opener)

	err := rec.Start(context.Background())
	var derr *DeviceError
	require.ErrorAs(t, err, &derr)

	// Failure leaves the engine in IDLE; the device is re-probed next time.
	assert.Equal(t, StateIdle, rec.State())

	opener.openErr = nil
	opener.device = newPipeDevice(16000, 1)
	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, 2, opener.opens)

	_, err = rec.Stop()
	require.NoError(t, err)
}

func TestRecorderStopWhileIdle(t *testing.T) {
	rec := newTestRecorder(t, &fakeOpener{})
	_, err := rec.Stop()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRecorderMaxDuration(t *testing.T) {
	device := newPipeDevice(16000, 1)
	rec := NewRecorder(&fakeOpener{device: device}, RecorderConfig{
		OutputDir:       t.TempDir(),
		ChunkMs:         10,
		MaxCallDuration: 50 * time.Millisecond,
	}, logger.Nop())

	require.NoError(t, rec.Start(context.Background()))
	device.feed(t, 20)

	select {
	case <-rec.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop at max duration")
	}

	recording, err := rec.Stop()
	require.NoError(t, err)
	require.NotNil(t, recording)
	assert.InDelta(t, 20*time.Millisecond, recording.Duration, float64(10*time.Millisecond))
}

func TestRecordingFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/call_20260115_093000.wav"

	w, err := NewWAVWriter(path, 16000, 1)
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 16000*2*2)) // two seconds
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec, err := RecordingFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, rec.Duration)
	assert.Equal(t, 16000, rec.SampleRate)
	want := time.Date(2026, 1, 15, 9, 30, 0, 0, time.Local)
	assert.Equal(t, want, rec.StartedAt)
	assert.Equal(t, "20260115_093000", rec.ID())
}
