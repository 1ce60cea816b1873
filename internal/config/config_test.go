package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
[transcription]
provider = "amivoice"
amivoice_api_key = "key-123"

[archive]
token = "ghp_test"
owner = "example-lab"
repo = "call-records"
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, ProviderAmiVoice, cfg.Transcription.Provider)
	assert.Equal(t, "call", cfg.Transcription.AmiVoiceEngine, "engine defaults to call")
	assert.Equal(t, "main", cfg.Archive.Branch)
	assert.Equal(t, "call_records", cfg.Archive.Path)
	assert.Equal(t, 16000, cfg.Recording.SampleRate)
	assert.Equal(t, 4, cfg.Transcription.RetryMaxAttempts)
}

func TestLoadMissingProvider(t *testing.T) {
	_, err := Load(writeConfig(t, `
[archive]
token = "ghp_test"
owner = "example-lab"
repo = "call-records"
`))
	require.Error(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "transcription.provider", cerr.Field)
	assert.Contains(t, err.Error(), "transcription.provider")
}

func TestLoadMissingCredential(t *testing.T) {
	_, err := Load(writeConfig(t, `
[transcription]
provider = "sakura"
sakura_token_id = "tok"

[archive]
token = "ghp_test"
owner = "example-lab"
repo = "call-records"
`))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "transcription.sakura_secret", cerr.Field)
}

func TestLoadUnknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, `
[transcription]
provider = "whisperx"

[archive]
token = "ghp_test"
owner = "example-lab"
repo = "call-records"
`))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "transcription.provider", cerr.Field)
	assert.Contains(t, cerr.Reason, "whisperx")
}

func TestLoadMissingArchiveFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
[transcription]
provider = "amivoice"
amivoice_api_key = "key-123"

[archive]
token = "ghp_test"
owner = "example-lab"
`))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "archive.repo", cerr.Field)
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("AMIVOICE_API_KEY", "env-key")
	t.Setenv("ARCHIVE_TOKEN", "env-token")

	cfg, err := Load(writeConfig(t, `
[transcription]
provider = "amivoice"

[archive]
owner = "example-lab"
repo = "call-records"
`))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Transcription.AmiVoiceAPIKey)
	assert.Equal(t, "env-token", cfg.Archive.Token)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
