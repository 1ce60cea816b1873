package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/katu09161004/tel-addapter/internal/audio"
	"github.com/katu09161004/tel-addapter/internal/transcription"
)

// writeTranscript renders the transcript as markdown and persists it
// locally before archiving, so a failed upload never loses the text.
// When the raw provider payload was retained it is written alongside as
// a sidecar for audit.
func writeTranscript(dir string, rec *audio.CallRecording, result *transcription.Result) (string, []byte, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create transcripts dir: %w", err)
	}

	content := renderTranscript(rec, result)

	stem := strings.TrimSuffix(filepath.Base(rec.AudioPath), filepath.Ext(rec.AudioPath))
	path := filepath.Join(dir, stem+"_transcript.md")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write transcript: %w", err)
	}

	if len(result.Raw) > 0 {
		rawPath := filepath.Join(dir, stem+"_raw.json")
		if err := os.WriteFile(rawPath, result.Raw, 0o644); err != nil {
			return "", nil, fmt.Errorf("failed to write raw transcript payload: %w", err)
		}
	}

	return path, content, nil
}

func renderTranscript(rec *audio.CallRecording, result *transcription.Result) []byte {
	var sb strings.Builder
	sb.WriteString("# Call record\n\n")
	fmt.Fprintf(&sb, "**Audio file:** %s\n", filepath.Base(rec.AudioPath))
	fmt.Fprintf(&sb, "**Recorded:** %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Duration:** %.1fs\n", rec.Duration.Seconds())
	fmt.Fprintf(&sb, "**Transcribed:** %s (provider: %s, confidence: %.2f)\n",
		time.Now().Format("2006-01-02 15:04:05"), result.Provider, result.Confidence)
	sb.WriteString("\n---\n\n")
	sb.WriteString(result.Text)
	sb.WriteString("\n")
	return []byte(sb.String())
}
