package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/katu09161004/tel-addapter/internal/audio"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// Config represents the configuration for the transcription client.
type Config struct {
	RetryMaxAttempts      int
	RetryInitialBackoffMs int
	RetryMaxBackoffMs     int
	KeepRaw               bool // retain the raw provider payload on the result
}

// Result is the immutable outcome of a successful transcription. Its
// identity is the source recording's identity.
type Result struct {
	Text          string
	Provider      string
	Raw           []byte // verbatim provider payload, nil when KeepRaw is off
	Confidence    float64
	AudioDuration time.Duration
	Attempts      int
}

// Client submits finalized recordings to the configured provider with
// bounded retry. Transient failures (network errors, 5xx, rate limiting)
// back off exponentially up to the attempt ceiling; content rejections
// (other 4xx) fail immediately.
type Client struct {
	provider Provider
	config   Config
	logger   *logger.Logger
}

// NewClient creates a new transcription client.
func NewClient(provider Provider, config Config, log *logger.Logger) *Client {
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = 4
	}
	if config.RetryInitialBackoffMs <= 0 {
		config.RetryInitialBackoffMs = 1000
	}
	if config.RetryMaxBackoffMs <= 0 {
		config.RetryMaxBackoffMs = 30000
	}
	return &Client{
		provider: provider,
		config:   config,
		logger:   log.Named("transcription"),
	}
}

// Transcribe submits the recording and parses the provider response.
func (c *Client) Transcribe(ctx context.Context, rec *audio.CallRecording) (*Result, error) {
	if rec.Duration <= 0 {
		return nil, fmt.Errorf("recording %s has zero duration", rec.AudioPath)
	}

	c.logger.Info("Transcribing recording",
		logger.String("path", rec.AudioPath),
		logger.String("provider", c.provider.Name()),
		logger.Duration("duration", rec.Duration),
	)

	raw, attempts, err := c.submitWithRetry(ctx, rec.AudioPath)
	if err != nil {
		return nil, err
	}

	transcript, err := c.provider.Parse(raw)
	if err != nil {
		// The provider answered but the payload carries no usable
		// transcript; retrying the same audio cannot change that.
		return nil, &Error{
			Kind:     KindRejected,
			Provider: c.provider.Name(),
			Attempts: attempts,
			Err:      err,
		}
	}

	result := &Result{
		Text:          transcript.Text,
		Provider:      c.provider.Name(),
		Confidence:    transcript.Confidence,
		AudioDuration: transcript.AudioDuration,
		Attempts:      attempts,
	}
	if result.AudioDuration == 0 {
		result.AudioDuration = rec.Duration
	}
	if c.config.KeepRaw {
		result.Raw = raw
	}

	c.logger.Info("Transcription completed",
		logger.String("provider", result.Provider),
		logger.Int("attempts", attempts),
		logger.Int("text_len", len(result.Text)),
		logger.Float64("confidence", result.Confidence),
	)

	return result, nil
}

// submitWithRetry runs the bounded retry loop: attempts are counted, the
// delay starts at the initial backoff, doubles each time and is capped.
func (c *Client) submitWithRetry(ctx context.Context, audioPath string) ([]byte, int, error) {
	maxAttempts := c.config.RetryMaxAttempts
	backoff := time.Duration(c.config.RetryInitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(c.config.RetryMaxBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := c.provider.Submit(ctx, audioPath)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err

		statusCode := 0
		if serr, ok := asStatusError(err); ok {
			statusCode = serr.code
		}

		if !transient(err) {
			return nil, attempt, &Error{
				Kind:       KindRejected,
				Provider:   c.provider.Name(),
				StatusCode: statusCode,
				Attempts:   attempt,
				Err:        err,
			}
		}

		if attempt == maxAttempts {
			break
		}

		c.logger.Warn("Transient transcription failure, retrying",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", maxAttempts),
			logger.Int("status", statusCode),
			logger.Duration("backoff", backoff),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	statusCode := 0
	if serr, ok := asStatusError(lastErr); ok {
		statusCode = serr.code
	}
	return nil, maxAttempts, &Error{
		Kind:       KindExhausted,
		Provider:   c.provider.Name(),
		StatusCode: statusCode,
		Attempts:   maxAttempts,
		Err:        lastErr,
	}
}
