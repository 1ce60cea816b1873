package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

const (
	sakuraEndpoint = "https://api.ai.sakura.ad.jp/v1/audio/transcriptions"
	sakuraModel    = "whisper-large-v3-turbo"
)

// Sakura is the Sakura AI Whisper transcription client.
type Sakura struct {
	tokenID    string
	secret     string
	endpoint   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewSakura creates a new Sakura Whisper provider.
func NewSakura(tokenID, secret string, timeout time.Duration, log *logger.Logger) *Sakura {
	return &Sakura{
		tokenID:  tokenID,
		secret:   secret,
		endpoint: sakuraEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("sakura"),
	}
}

// Name returns the provider identifier.
func (s *Sakura) Name() string { return "sakura" }

// Submit sends the audio artifact to the transcription endpoint and
// returns the raw response payload.
func (s *Sakura) Submit(ctx context.Context, audioPath string) ([]byte, error) {
	body, contentType, err := multipartFile(audioPath, "file", map[string]string{
		"model":    sakuraModel,
		"language": "ja",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(s.tokenID, s.secret)

	s.logger.Debug("Submitting audio for transcription",
		logger.String("path", audioPath),
		logger.String("model", sakuraModel),
	)

	return submit(s.httpClient, req)
}

type sakuraResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// Parse extracts the transcript text. Whisper does not report confidence,
// so it is fixed at 1.0.
func (s *Sakura) Parse(raw []byte) (*Transcript, error) {
	var resp sakuraResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	return &Transcript{
		Text:          resp.Text,
		Confidence:    1.0,
		AudioDuration: time.Duration(resp.Duration * float64(time.Second)),
	}, nil
}
