package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katu09161004/tel-addapter/internal/config"
	"github.com/katu09161004/tel-addapter/internal/storage/sqlite"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

func newTestRouter(t *testing.T) (*Router, *sqlite.RunStorage) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs, err := sqlite.NewRunStorage(db, logger.Nop())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Transcription.Provider = config.ProviderAmiVoice
	cfg.Transcription.AmiVoiceAPIKey = "secret-key"
	cfg.Archive.Token = "secret-token"
	cfg.Archive.Owner = "someone"
	cfg.Archive.Repo = "call-archive"
	cfg.Archive.Branch = "main"
	cfg.Archive.Path = "call_records"

	return NewRouter(runs, cfg, logger.Nop()), runs
}

func storeTestRun(t *testing.T, runs *sqlite.RunStorage, state string, startedAt time.Time) int64 {
	t.Helper()
	id, err := runs.StoreRun(&sqlite.RunRecord{
		StartedAt:       startedAt,
		EndedAt:         startedAt.Add(30 * time.Second),
		DurationSeconds: 30,
		AudioPath:       "/var/lib/tel-addapter/call_20260115_093000.wav",
		Provider:        "amivoice",
		State:           state,
	})
	require.NoError(t, err)
	return id
}

func TestGetHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetRuns(t *testing.T) {
	router, runs := newTestRouter(t)
	storeTestRun(t, runs, "DONE", time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))
	storeTestRun(t, runs, "FAILED", time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count int                 `json:"count"`
		Runs  []*sqlite.RunRecord `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "FAILED", body.Runs[0].State, "newest run comes first")
	assert.Equal(t, "DONE", body.Runs[1].State)
}

func TestGetRunsInvalidLimit(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs?limit=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunByID(t *testing.T) {
	router, runs := newTestRouter(t)
	id := storeTestRun(t, runs, "DONE", time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs/" + strconv.FormatInt(id, 10))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run sqlite.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "amivoice", run.Provider)
}

func TestGetRunByIDNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs/9999")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetConfigRedactsCredentials(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "secret-key")
	assert.NotContains(t, string(raw), "secret-token")
	assert.Contains(t, string(raw), "call-archive")
}
