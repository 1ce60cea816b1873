package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

const amiVoiceEndpoint = "https://acp-api.amivoice.com/v1/recognize"

// amiVoiceEngines maps the configured engine name to the AmiVoice grammar
// identifier. Unknown names pass through unchanged so new engines can be
// used without a code change.
var amiVoiceEngines = map[string]string{
	"general":  "-a-general",
	"medical":  "-a-medical",
	"business": "-a-business",
	"call":     "-a-call", // call-center vocabulary, tuned for phone audio
}

// AmiVoice is the AmiVoice Cloud synchronous recognition client.
type AmiVoice struct {
	apiKey     string
	engine     string
	endpoint   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewAmiVoice creates a new AmiVoice provider.
func NewAmiVoice(apiKey, engine string, timeout time.Duration, log *logger.Logger) *AmiVoice {
	grammar, ok := amiVoiceEngines[engine]
	if !ok {
		grammar = engine
	}
	return &AmiVoice{
		apiKey:   apiKey,
		engine:   grammar,
		endpoint: amiVoiceEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("amivoice"),
	}
}

// Name returns the provider identifier.
func (a *AmiVoice) Name() string { return "amivoice" }

// Submit sends the audio artifact to the recognition endpoint and returns
// the raw response payload.
func (a *AmiVoice) Submit(ctx context.Context, audioPath string) ([]byte, error) {
	body, contentType, err := multipartFile(audioPath, "a", map[string]string{
		"u": a.apiKey,
		"d": a.engine,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	a.logger.Debug("Submitting audio for recognition",
		logger.String("path", audioPath),
		logger.String("engine", a.engine),
	)

	return submit(a.httpClient, req)
}

// amiVoiceResponse mirrors the parts of the recognition payload we read.
type amiVoiceResponse struct {
	Results []struct {
		Tokens []struct {
			Written string `json:"written"`
		} `json:"tokens"`
		Confidence float64 `json:"confidence"`
		StartTime  int     `json:"starttime"` // milliseconds
		EndTime    int     `json:"endtime"`
	} `json:"results"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

// Parse extracts the transcript text from a recognition payload. The text
// is the concatenation of every token across segments; confidence is the
// segment average.
func (a *AmiVoice) Parse(raw []byte) (*Transcript, error) {
	var resp amiVoiceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse recognition response: %w", err)
	}

	if resp.Results == nil {
		msg := resp.Message
		if msg == "" {
			msg = resp.Text
		}
		if msg == "" {
			msg = "response contains no results"
		}
		return nil, fmt.Errorf("recognition failed: %s", msg)
	}

	var sb strings.Builder
	var totalConfidence float64
	var totalMs int
	for _, seg := range resp.Results {
		for _, tok := range seg.Tokens {
			sb.WriteString(tok.Written)
		}
		totalConfidence += seg.Confidence
		totalMs += seg.EndTime - seg.StartTime
	}

	confidence := 0.0
	if len(resp.Results) > 0 {
		confidence = totalConfidence / float64(len(resp.Results))
	}

	return &Transcript{
		Text:          sb.String(),
		Confidence:    confidence,
		AudioDuration: time.Duration(totalMs) * time.Millisecond,
	}, nil
}
