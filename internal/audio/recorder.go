package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// State represents the capture engine lifecycle state.
type State int

const (
	// StateIdle - no device held, ready to start.
	StateIdle State = iota
	// StateArmed - device open, waiting for the first audio frame.
	StateArmed
	// StateCapturing - frames are being appended to the artifact.
	StateCapturing
	// StateFinalized - artifact flushed and closed.
	StateFinalized
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateCapturing:
		return "CAPTURING"
	case StateFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ErrInvalidState is returned by Start while a capture is already in
// progress, and by Stop when no capture is in progress.
var ErrInvalidState = errors.New("recorder: invalid state for operation")

// CallRecording is the immutable result of one finalized capture.
type CallRecording struct {
	AudioPath  string
	Duration   time.Duration
	SampleRate int
	Channels   int
	StartedAt  time.Time
	EndedAt    time.Time
}

// ID returns the recording identity, derived from the capture-start
// timestamp. It is also the stem of the artifact file name.
func (r *CallRecording) ID() string {
	return r.StartedAt.Format("20060102_150405")
}

// RecorderConfig represents configuration for the capture engine.
type RecorderConfig struct {
	OutputDir       string
	ChunkMs         int
	MaxCallDuration time.Duration // 0 means unbounded
}

// Recorder owns the capture device handle for the duration of one call
// lifecycle and produces WAV artifacts. State transitions:
//
//	IDLE → ARMED → CAPTURING → FINALIZED
//	         │
//	         └── zero frames before Stop ──→ no CallRecording (empty run)
//
// FINALIZED is transient: once Stop hands the recording off, the recorder
// returns to IDLE so the next call can begin.
type Recorder struct {
	opener Opener
	config RecorderConfig
	logger *logger.Logger

	mu        sync.Mutex
	state     State
	device    Device
	writer    *WAVWriter
	audioPath string
	startedAt time.Time
	readErr   error
	done      chan struct{}
	timer     *time.Timer
	wg        sync.WaitGroup
}

// NewRecorder creates a new capture engine.
func NewRecorder(opener Opener, config RecorderConfig, logger *logger.Logger) *Recorder {
	return &Recorder{
		opener: opener,
		config: config,
		logger: logger.Named("recorder"),
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done returns a channel closed when the read loop exits on its own
// (max call duration reached or device stream ended). The caller must
// still call Stop to finalize the artifact.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Elapsed returns the duration captured so far.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return 0
	}
	return r.writer.Duration()
}

// Start opens the capture device and begins reading frames. A device-open
// failure leaves the recorder in IDLE with no resources held; the device
// is re-probed on the next Start.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, r.state)
	}

	if err := os.MkdirAll(r.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create recordings dir: %w", err)
	}

	device, err := r.opener.Open(ctx)
	if err != nil {
		var derr *DeviceError
		if errors.As(err, &derr) {
			return err
		}
		return &DeviceError{Err: err}
	}

	r.device = device
	r.writer = nil
	r.audioPath = ""
	r.readErr = nil
	r.done = make(chan struct{})
	r.state = StateArmed

	if r.config.MaxCallDuration > 0 {
		// Closing the device unblocks the read loop; Stop does the flush.
		r.timer = time.AfterFunc(r.config.MaxCallDuration, func() {
			r.logger.Info("Max call duration reached, stopping capture",
				logger.Duration("max_duration", r.config.MaxCallDuration))
			device.Close()
		})
	}

	r.logger.Info("Capture armed, waiting for audio")

	r.wg.Add(1)
	go r.readLoop(device)

	return nil
}

// readLoop appends frames to the artifact until the device stream ends.
func (r *Recorder) readLoop(device Device) {
	defer r.wg.Done()

	frame := make([]byte, frameBytes(device.SampleRate(), device.Channels(), r.config.ChunkMs))

	for {
		n, err := device.Read(frame)
		if n > 0 {
			if werr := r.appendFrame(device, frame[:n]); werr != nil {
				r.setReadErr(werr)
				break
			}
		}
		if err != nil {
			// EOF after Close is the normal exit; anything else is a
			// device fault surfaced by Stop.
			if r.State() == StateCapturing || r.State() == StateArmed {
				r.logger.Debug("Capture read loop ended", logger.Error(err))
			}
			break
		}
	}

	r.mu.Lock()
	close(r.done)
	r.mu.Unlock()
}

// appendFrame writes one frame, creating the artifact on the first
// confirmed frame (ARMED → CAPTURING).
func (r *Recorder) appendFrame(device Device, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		r.startedAt = time.Now()
		name := fmt.Sprintf("call_%s.wav", r.startedAt.Format("20060102_150405"))
		r.audioPath = filepath.Join(r.config.OutputDir, name)

		writer, err := NewWAVWriter(r.audioPath, device.SampleRate(), device.Channels())
		if err != nil {
			return err
		}
		r.writer = writer
		r.state = StateCapturing

		r.logger.Info("First audio frame received, recording",
			logger.String("path", r.audioPath))
	}

	_, err := r.writer.Write(frame)
	return err
}

func (r *Recorder) setReadErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = err
}

// Stop finalizes the capture: it releases the device, flushes and closes
// the artifact, and returns the CallRecording. A capture that never
// received an audio frame returns (nil, nil) - an empty run, not an error.
func (r *Recorder) Stop() (*CallRecording, error) {
	r.mu.Lock()
	if r.state != StateArmed && r.state != StateCapturing {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, r.state)
	}
	device := r.device
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	// Unblock the read loop, then wait for it to drain.
	device.Close()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.device = nil

	if r.writer == nil {
		// No audio ever arrived.
		r.state = StateIdle
		r.logger.Info("Capture stopped before any audio frame, no recording produced")
		return nil, nil
	}

	writer := r.writer
	r.writer = nil

	if err := writer.Close(); err != nil {
		r.state = StateIdle
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}
	r.state = StateFinalized

	recording := &CallRecording{
		AudioPath:  r.audioPath,
		Duration:   writer.Duration(),
		SampleRate: writer.sampleRate,
		Channels:   writer.channels,
		StartedAt:  r.startedAt,
		EndedAt:    r.startedAt.Add(writer.Duration()),
	}

	r.logger.Info("Recording finalized",
		logger.String("path", recording.AudioPath),
		logger.Duration("duration", recording.Duration))

	if r.readErr != nil {
		// The artifact up to the fault is preserved; report the fault.
		r.state = StateIdle
		return recording, fmt.Errorf("capture ended with device fault: %w", r.readErr)
	}

	r.state = StateIdle
	return recording, nil
}

// RecordingFromFile synthesizes a CallRecording from an existing WAV file,
// for transcribing pre-recorded audio. The capture-start timestamp comes
// from the call_YYYYMMDD_HHMMSS.wav naming scheme when the file follows
// it, otherwise from the file modification time.
func RecordingFromFile(path string) (*CallRecording, error) {
	header, err := ReadWAVHeader(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}

	duration := header.Duration()
	startedAt := info.ModTime().Add(-duration)

	stem := filepath.Base(path)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	if ts, ok := parseRecordingStem(stem); ok {
		startedAt = ts
	}

	return &CallRecording{
		AudioPath:  path,
		Duration:   duration,
		SampleRate: int(header.SampleRate),
		Channels:   int(header.NumChannels),
		StartedAt:  startedAt,
		EndedAt:    startedAt.Add(duration),
	}, nil
}

// parseRecordingStem extracts the timestamp from call_YYYYMMDD_HHMMSS
// or bare YYYYMMDD_HHMMSS file stems.
func parseRecordingStem(stem string) (time.Time, bool) {
	trimmed := stem
	if len(trimmed) > 5 && trimmed[:5] == "call_" {
		trimmed = trimmed[5:]
	}
	ts, err := time.ParseInLocation("20060102_150405", trimmed, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
