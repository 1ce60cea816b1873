package cmd

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/katu09161004/tel-addapter/internal/archive"
	"github.com/katu09161004/tel-addapter/internal/audio"
	"github.com/katu09161004/tel-addapter/internal/config"
	"github.com/katu09161004/tel-addapter/internal/pipeline"
	"github.com/katu09161004/tel-addapter/internal/storage/sqlite"
	"github.com/katu09161004/tel-addapter/internal/transcription"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// app wires the pipeline components together from the loaded
// configuration. Every command builds one and closes it on exit.
type app struct {
	config       *config.Config
	logger       *logger.Logger
	db           *sql.DB
	runs         *sqlite.RunStorage
	recorder     *audio.Recorder
	orchestrator *pipeline.Orchestrator
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	runs, err := sqlite.NewRunStorage(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run log: %w", err)
	}

	recorder := audio.NewRecorder(&audio.FFmpegOpener{
		FFmpegPath: cfg.Recording.FFmpegPath,
		DeviceName: cfg.Recording.Device,
		Rate:       cfg.Recording.SampleRate,
		Chans:      cfg.Recording.Channels,
		Logger:     log,
	}, audio.RecorderConfig{
		OutputDir:       cfg.Recording.RecordingsDir,
		ChunkMs:         cfg.Recording.ChunkMs,
		MaxCallDuration: time.Duration(cfg.Recording.MaxCallDurationSec) * time.Second,
	}, log)

	provider, err := newProvider(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	transcriber := transcription.NewClient(provider, transcription.Config{
		RetryMaxAttempts:      cfg.Transcription.RetryMaxAttempts,
		RetryInitialBackoffMs: cfg.Transcription.RetryInitialBackoffMs,
		RetryMaxBackoffMs:     cfg.Transcription.RetryMaxBackoffMs,
		KeepRaw:               cfg.Transcription.SaveRawTranscript,
	}, log)

	uploader := archive.NewUploader(archive.Config{
		Token:    cfg.Archive.Token,
		Owner:    cfg.Archive.Owner,
		Repo:     cfg.Archive.Repo,
		Branch:   cfg.Archive.Branch,
		BasePath: cfg.Archive.Path,
	}, log)

	orchestrator := pipeline.NewOrchestrator(recorder, transcriber, uploader, runs, pipeline.Config{
		SaveAudioToArchive: cfg.Archive.SaveAudio,
		TranscriptsDir:     cfg.Recording.TranscriptsDir,
	}, log)

	return &app{
		config:       cfg,
		logger:       log,
		db:           db,
		runs:         runs,
		recorder:     recorder,
		orchestrator: orchestrator,
	}, nil
}

func newProvider(cfg *config.Config, log *logger.Logger) (transcription.Provider, error) {
	timeout := time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second

	switch cfg.Transcription.Provider {
	case config.ProviderAmiVoice:
		return transcription.NewAmiVoice(cfg.Transcription.AmiVoiceAPIKey, cfg.Transcription.AmiVoiceEngine, timeout, log), nil
	case config.ProviderSakura:
		return transcription.NewSakura(cfg.Transcription.SakuraTokenID, cfg.Transcription.SakuraSecret, timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", cfg.Transcription.Provider)
	}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
