package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Provider identifiers accepted for transcription.provider.
const (
	ProviderAmiVoice = "amivoice"
	ProviderSakura   = "sakura"
)

// ConfigError describes a missing or invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the immutable application configuration. It is loaded once at
// startup and passed by reference into each component's constructor.
type Config struct {
	Transcription TranscriptionConfig `toml:"transcription"`
	Archive       ArchiveConfig       `toml:"archive"`
	Recording     RecordingConfig     `toml:"recording"`
	Storage       StorageConfig       `toml:"storage"`
	Server        ServerConfig        `toml:"server"`
	Logging       LoggingConfig       `toml:"logging"`
}

// TranscriptionConfig configures the speech-to-text client.
type TranscriptionConfig struct {
	Provider              string `toml:"provider"` // amivoice or sakura
	AmiVoiceAPIKey        string `toml:"amivoice_api_key"`
	AmiVoiceEngine        string `toml:"amivoice_engine"` // general, medical, business, call
	SakuraTokenID         string `toml:"sakura_token_id"`
	SakuraSecret          string `toml:"sakura_secret"`
	SaveRawTranscript     bool   `toml:"save_raw_transcript"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	RetryMaxAttempts      int    `toml:"retry_max_attempts"`
	RetryInitialBackoffMs int    `toml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int    `toml:"retry_max_backoff_ms"`
}

// ArchiveConfig configures the remote version-controlled store.
type ArchiveConfig struct {
	Token     string `toml:"token"`
	Owner     string `toml:"owner"`
	Repo      string `toml:"repo"`
	Branch    string `toml:"branch"`
	Path      string `toml:"path"`
	SaveAudio bool   `toml:"save_audio"`
}

// RecordingConfig configures the audio capture engine.
type RecordingConfig struct {
	Device             string `toml:"device"` // ALSA device name, e.g. "hw:1,0"
	FFmpegPath         string `toml:"ffmpeg_path"`
	SampleRate         int    `toml:"sample_rate"`
	Channels           int    `toml:"channels"`
	ChunkMs            int    `toml:"chunk_ms"`
	MaxCallDurationSec int    `toml:"max_call_duration_sec"`
	RecordingsDir      string `toml:"recordings_dir"`
	TranscriptsDir     string `toml:"transcripts_dir"`
}

// StorageConfig configures the local run log.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Addr               string   `toml:"addr"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the configuration file, fills credential fields from the
// environment where the file left them empty, applies defaults, and
// validates. Validation failures are reported as *ConfigError naming the
// offending field.
func Load(path string) (*Config, error) {
	// .env is optional; credentials may also come from the real environment.
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setIfEmpty(&c.Transcription.AmiVoiceAPIKey, "AMIVOICE_API_KEY")
	setIfEmpty(&c.Transcription.SakuraTokenID, "SAKURA_TOKEN_ID")
	setIfEmpty(&c.Transcription.SakuraSecret, "SAKURA_SECRET")
	setIfEmpty(&c.Archive.Token, "ARCHIVE_TOKEN")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

func (c *Config) applyDefaults() {
	if c.Transcription.AmiVoiceEngine == "" {
		c.Transcription.AmiVoiceEngine = "call"
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = 300
	}
	if c.Transcription.RetryMaxAttempts == 0 {
		c.Transcription.RetryMaxAttempts = 4
	}
	if c.Transcription.RetryInitialBackoffMs == 0 {
		c.Transcription.RetryInitialBackoffMs = 1000
	}
	if c.Transcription.RetryMaxBackoffMs == 0 {
		c.Transcription.RetryMaxBackoffMs = 30000
	}
	if c.Archive.Branch == "" {
		c.Archive.Branch = "main"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "call_records"
	}
	if c.Recording.FFmpegPath == "" {
		c.Recording.FFmpegPath = "ffmpeg"
	}
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = 16000
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = 1
	}
	if c.Recording.ChunkMs == 0 {
		c.Recording.ChunkMs = 100
	}
	if c.Recording.RecordingsDir == "" {
		c.Recording.RecordingsDir = "recordings"
	}
	if c.Recording.TranscriptsDir == "" {
		c.Recording.TranscriptsDir = "transcripts"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "tel-addapter.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks that every required field is present. It returns the
// first problem found as a *ConfigError so the operator sees the exact
// field to fix, and runs before any device or network access.
func (c *Config) Validate() error {
	switch c.Transcription.Provider {
	case "":
		return &ConfigError{Field: "transcription.provider", Reason: "required field is missing"}
	case ProviderAmiVoice:
		if c.Transcription.AmiVoiceAPIKey == "" {
			return &ConfigError{Field: "transcription.amivoice_api_key", Reason: "required for provider amivoice"}
		}
	case ProviderSakura:
		if c.Transcription.SakuraTokenID == "" {
			return &ConfigError{Field: "transcription.sakura_token_id", Reason: "required for provider sakura"}
		}
		if c.Transcription.SakuraSecret == "" {
			return &ConfigError{Field: "transcription.sakura_secret", Reason: "required for provider sakura"}
		}
	default:
		return &ConfigError{
			Field:  "transcription.provider",
			Reason: fmt.Sprintf("unknown provider %q (expected %s or %s)", c.Transcription.Provider, ProviderAmiVoice, ProviderSakura),
		}
	}

	if c.Archive.Token == "" {
		return &ConfigError{Field: "archive.token", Reason: "required field is missing"}
	}
	if c.Archive.Owner == "" {
		return &ConfigError{Field: "archive.owner", Reason: "required field is missing"}
	}
	if c.Archive.Repo == "" {
		return &ConfigError{Field: "archive.repo", Reason: "required field is missing"}
	}

	return nil
}
