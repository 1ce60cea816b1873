package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Transcript is the parsed provider payload.
type Transcript struct {
	Text          string
	Confidence    float64
	AudioDuration time.Duration
}

// Provider is a pluggable speech-to-text backend. Submit sends the audio
// artifact and returns the raw response payload verbatim; Parse extracts
// the transcript from it. The raw payload is retained for audit even when
// Parse only recovers part of the structured fields.
type Provider interface {
	Name() string
	Submit(ctx context.Context, audioPath string) ([]byte, error)
	Parse(raw []byte) (*Transcript, error)
}

// multipartFile builds a multipart/form-data body with the given form
// fields and the audio file under fileField.
func multipartFile(audioPath, fileField string, fields map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	fw, err := mw.CreateFormFile(fileField, filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return &body, mw.FormDataContentType(), nil
}

// submit executes the request and returns the response body. Non-2xx
// responses become statusError for retry classification.
func submit(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
