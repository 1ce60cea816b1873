package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/katu09161004/tel-addapter/internal/archive"
	"github.com/katu09161004/tel-addapter/internal/audio"
	"github.com/katu09161004/tel-addapter/internal/storage/sqlite"
	"github.com/katu09161004/tel-addapter/internal/transcription"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// ErrBusy is returned when a run is requested while another run still
// holds the capture device.
var ErrBusy = errors.New("pipeline: a run is already in progress")

// Transcriber turns a finalized recording into a transcription result.
type Transcriber interface {
	Transcribe(ctx context.Context, rec *audio.CallRecording) (*transcription.Result, error)
}

// Uploader persists artifacts to the remote archive at deterministic
// per-call paths.
type Uploader interface {
	Upload(ctx context.Context, content []byte, remotePath string) (*archive.Record, error)
	AudioPath(start time.Time) string
	TranscriptPath(start time.Time) string
}

// Run is the ephemeral aggregate tying one recording to its transcription
// and archive outcomes.
type Run struct {
	State             State
	Stage             State // stage reached when State is FAILED
	Recording         *audio.CallRecording
	Result            *transcription.Result
	TranscriptPath    string // local transcript artifact
	AudioArchive      *archive.Record
	TranscriptArchive *archive.Record
	Err               error
}

// Config represents the configuration for the orchestrator.
type Config struct {
	SaveAudioToArchive bool
	TranscriptsDir     string
	ProgressInterval   time.Duration
}

// Orchestrator drives the call lifecycle: capture, transcription,
// archival. It is the single point sequencing side effects across the
// device and the network, and never lets two runs hold the capture
// device at once.
type Orchestrator struct {
	recorder    *audio.Recorder
	transcriber Transcriber
	uploader    Uploader
	runs        *sqlite.RunStorage
	config      Config
	logger      *logger.Logger
	mu          sync.Mutex
}

// NewOrchestrator creates a new pipeline orchestrator. runs may be nil
// when the run log is disabled.
func NewOrchestrator(
	recorder *audio.Recorder,
	transcriber Transcriber,
	uploader Uploader,
	runs *sqlite.RunStorage,
	config Config,
	logger *logger.Logger,
) *Orchestrator {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 5 * time.Second
	}
	return &Orchestrator{
		recorder:    recorder,
		transcriber: transcriber,
		uploader:    uploader,
		runs:        runs,
		config:      config,
		logger:      logger.Named("pipeline"),
	}
}

// Run executes continuous mode: record until the operator interrupt, run
// the remaining stages, then wait for the next call. The interrupt is
// sampled during recording and between runs only; in-flight network
// stages always finish.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("Continuous mode started, press Ctrl-C to stop the current recording")

	for {
		if ctx.Err() != nil {
			o.logger.Info("Continuous mode stopped")
			return nil
		}

		run, err := o.RunOnce(ctx)
		if err != nil {
			var derr *audio.DeviceError
			if errors.As(err, &derr) {
				return err
			}
			// Stage failures keep their artifacts; the operator can
			// re-run the failed stage manually while we wait for the
			// next call.
			o.logger.Error("Run failed, artifacts preserved", logger.Error(err))
			continue
		}
		if run != nil && run.State == StateDone {
			o.logger.Info("Run completed",
				logger.String("audio", run.Recording.AudioPath),
				logger.String("transcript", run.TranscriptPath))
		}
	}
}

// RunOnce executes a single capture cycle: record until the context is
// cancelled (operator interrupt) or the capture ends on its own, then
// transcribe and archive. A capture that produced no audio returns a run
// in WAITING state and no error.
func (o *Orchestrator) RunOnce(ctx context.Context) (*Run, error) {
	if !o.mu.TryLock() {
		return nil, ErrBusy
	}
	defer o.mu.Unlock()

	o.logger.Info("Run started", logger.String("state", StateRecording.String()))

	if err := o.recorder.Start(ctx); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(o.config.ProgressInterval)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			// The interrupt is the expected stop signal, not an error.
			break wait
		case <-o.recorder.Done():
			break wait
		case <-ticker.C:
			o.logger.Info("Recording", logger.Duration("elapsed", o.recorder.Elapsed()))
		}
	}

	rec, err := o.recorder.Stop()
	if err != nil && rec == nil {
		return nil, err
	}
	if err != nil {
		o.logger.Warn("Capture ended abnormally, artifact preserved",
			logger.String("audio", rec.AudioPath), logger.Error(err))
	}

	if rec == nil || rec.Duration <= 0 {
		// Zero-length captures are discarded, not transcribed.
		return &Run{State: StateWaiting}, nil
	}

	// Later stages are not interruptible: a half-written remote state is
	// worse than a late shutdown.
	return o.process(context.WithoutCancel(ctx), rec)
}

// TranscribeFile executes one-shot mode: a synthesized recording from an
// existing WAV file enters the pipeline at the transcription stage.
func (o *Orchestrator) TranscribeFile(ctx context.Context, path string) (*Run, error) {
	if !o.mu.TryLock() {
		return nil, ErrBusy
	}
	defer o.mu.Unlock()

	rec, err := audio.RecordingFromFile(path)
	if err != nil {
		return nil, err
	}
	if rec.Duration <= 0 {
		return nil, fmt.Errorf("audio file %s has zero duration", path)
	}

	return o.process(context.WithoutCancel(ctx), rec)
}

// process runs the TRANSCRIBING and ARCHIVING stages for a finalized
// recording.
func (o *Orchestrator) process(ctx context.Context, rec *audio.CallRecording) (*Run, error) {
	run := &Run{State: StateTranscribing, Recording: rec}

	o.logger.Info("Transcribing",
		logger.String("audio", rec.AudioPath),
		logger.Duration("duration", rec.Duration))

	result, err := o.transcriber.Transcribe(ctx, rec)
	if err != nil {
		return o.fail(run, StateTranscribing, err)
	}
	run.Result = result

	run.State = StateArchiving

	transcriptPath, content, err := writeTranscript(o.config.TranscriptsDir, rec, result)
	if err != nil {
		return o.fail(run, StateArchiving, err)
	}
	run.TranscriptPath = transcriptPath

	if o.config.SaveAudioToArchive {
		audioBytes, err := os.ReadFile(rec.AudioPath)
		if err != nil {
			return o.fail(run, StateArchiving, fmt.Errorf("failed to read audio artifact: %w", err))
		}
		record, err := o.uploader.Upload(ctx, audioBytes, o.uploader.AudioPath(rec.StartedAt))
		if err != nil {
			return o.fail(run, StateArchiving, err)
		}
		run.AudioArchive = record
	}

	record, err := o.uploader.Upload(ctx, content, o.uploader.TranscriptPath(rec.StartedAt))
	if err != nil {
		return o.fail(run, StateArchiving, err)
	}
	run.TranscriptArchive = record

	run.State = StateDone
	o.storeRun(run)
	return run, nil
}

// fail moves the run to FAILED, records it, and reports the failure with
// enough context for a manual re-run of the failed stage.
func (o *Orchestrator) fail(run *Run, stage State, err error) (*Run, error) {
	run.State = StateFailed
	run.Stage = stage
	run.Err = err

	fields := []logger.Field{
		logger.String("stage", stage.String()),
		logger.String("audio", run.Recording.AudioPath),
		logger.Error(err),
	}
	if run.TranscriptPath != "" {
		fields = append(fields, logger.String("transcript", run.TranscriptPath))
	}
	o.logger.Error("Run failed, local artifacts preserved", fields...)

	o.storeRun(run)
	return run, err
}

// storeRun appends the run to the audit log. Log failures never fail the
// run itself.
func (o *Orchestrator) storeRun(run *Run) {
	if o.runs == nil {
		return
	}

	record := &sqlite.RunRecord{
		StartedAt:       run.Recording.StartedAt,
		EndedAt:         run.Recording.EndedAt,
		DurationSeconds: run.Recording.Duration.Seconds(),
		AudioPath:       run.Recording.AudioPath,
		TranscriptPath:  run.TranscriptPath,
		State:           run.State.String(),
	}
	if run.Result != nil {
		record.Provider = run.Result.Provider
	}
	if run.State == StateFailed {
		record.Stage = run.Stage.String()
		if run.Err != nil {
			record.Error = run.Err.Error()
		}
	}
	if run.AudioArchive != nil {
		record.AudioRevision = run.AudioArchive.Revision
	}
	if run.TranscriptArchive != nil {
		record.TranscriptRevision = run.TranscriptArchive.Revision
	}

	if _, err := o.runs.StoreRun(record); err != nil {
		o.logger.Warn("Failed to record run in audit log", logger.Error(err))
	}
}
