package sqlite

import "time"

// RunRecord is the audit-log row for one pipeline run.
type RunRecord struct {
	ID                 int64     `json:"id"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	DurationSeconds    float64   `json:"duration_seconds"`
	AudioPath          string    `json:"audio_path"`
	TranscriptPath     string    `json:"transcript_path,omitempty"`
	Provider           string    `json:"provider,omitempty"`
	State              string    `json:"state"` // DONE or FAILED
	Stage              string    `json:"stage,omitempty"`
	Error              string    `json:"error,omitempty"`
	AudioRevision      string    `json:"audio_revision,omitempty"`
	TranscriptRevision string    `json:"transcript_revision,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
