package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/katu09161004/tel-addapter/internal/config"
	"github.com/katu09161004/tel-addapter/internal/storage/sqlite"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// Handler serves the read-only status API over the run log.
type Handler struct {
	runs      *sqlite.RunStorage
	config    *config.Config
	logger    *logger.Logger
	startedAt time.Time
}

// NewHandler creates a new API handler
func NewHandler(runs *sqlite.RunStorage, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		runs:      runs,
		config:    config,
		logger:    logger.Named("api-handler"),
		startedAt: time.Now(),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// GetHealth returns service liveness and uptime.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// GetRuns returns the most recent pipeline runs, newest first. The limit
// query parameter caps the result set (default 50).
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.GetRuns(limit)
	if err != nil {
		h.logger.Error("Failed to query runs", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query runs")
		return
	}
	if runs == nil {
		runs = []*sqlite.RunRecord{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// GetRunByID returns a single pipeline run.
func (h *Handler) GetRunByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := h.runs.GetRunByID(id)
	if err != nil {
		h.logger.Error("Failed to query run", logger.Int64("id", id), logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query run")
		return
	}
	if run == nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// GetConfig returns the active configuration with credentials redacted.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transcription": map[string]interface{}{
			"provider":        h.config.Transcription.Provider,
			"amivoice_engine": h.config.Transcription.AmiVoiceEngine,
			"timeout_seconds": h.config.Transcription.TimeoutSeconds,
		},
		"archive": map[string]interface{}{
			"owner":      h.config.Archive.Owner,
			"repo":       h.config.Archive.Repo,
			"branch":     h.config.Archive.Branch,
			"path":       h.config.Archive.Path,
			"save_audio": h.config.Archive.SaveAudio,
		},
		"recording": map[string]interface{}{
			"device":      h.config.Recording.Device,
			"sample_rate": h.config.Recording.SampleRate,
			"channels":    h.config.Recording.Channels,
		},
	})
}
