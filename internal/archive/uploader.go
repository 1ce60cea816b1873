package archive

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

const defaultAPIBase = "https://api.github.com"

// Record describes one successful persistence into the remote store.
// Records are append-only: the system never mutates or deletes them.
type Record struct {
	RemotePath string    `json:"remote_path"`
	Revision   string    `json:"revision"` // commit SHA of the upload
	ContentSHA string    `json:"content_sha"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Config represents the configuration for the archive uploader.
type Config struct {
	Token                 string
	Owner                 string
	Repo                  string
	Branch                string
	BasePath              string
	TimeoutSeconds        int
	RetryMaxAttempts      int
	RetryInitialBackoffMs int
	RetryMaxBackoffMs     int
}

// Uploader persists artifacts to a version-controlled GitHub repository
// through the Contents API. Target paths are deterministic per call so
// two uploads of the same call never collide and two different calls
// never collide.
type Uploader struct {
	config     Config
	apiBase    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewUploader creates a new archive uploader.
func NewUploader(config Config, log *logger.Logger) *Uploader {
	if config.Branch == "" {
		config.Branch = "main"
	}
	if config.BasePath == "" {
		config.BasePath = "call_records"
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 60
	}
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = 4
	}
	if config.RetryInitialBackoffMs <= 0 {
		config.RetryInitialBackoffMs = 1000
	}
	if config.RetryMaxBackoffMs <= 0 {
		config.RetryMaxBackoffMs = 30000
	}
	return &Uploader{
		config:  config,
		apiBase: defaultAPIBase,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: log.Named("archive"),
	}
}

// AudioPath returns the deterministic remote path for the audio artifact
// of a call that started at the given time.
func (u *Uploader) AudioPath(start time.Time) string {
	return path.Join(u.config.BasePath, start.Format("20060102_150405")+".wav")
}

// TranscriptPath returns the deterministic remote path for the transcript
// artifact of a call that started at the given time.
func (u *Uploader) TranscriptPath(start time.Time) string {
	return path.Join(u.config.BasePath, start.Format("20060102_150405")+".md")
}

// blobSHA computes the git blob object ID of the content, which is what
// the Contents API reports as the file SHA.
func blobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Upload persists content at remotePath. Behavior at an occupied path:
// identical content is a no-op success (the existing revision is
// returned), different content is a pathConflict. A stale concurrency
// token gets one re-fetch and one write retry before failing as conflict.
func (u *Uploader) Upload(ctx context.Context, content []byte, remotePath string) (*Record, error) {
	localSHA := blobSHA(content)

	existingSHA, found, err := u.getFileSHA(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	if found {
		if existingSHA == localSHA {
			return u.noopRecord(ctx, remotePath, localSHA)
		}
		return nil, &Error{Kind: KindPathConflict, Path: remotePath,
			Err: fmt.Errorf("object with different content already present")}
	}

	record, err := u.putFile(ctx, remotePath, content, "")
	if err == nil {
		return record, nil
	}

	// A concurrent writer may have created the path between the existence
	// check and the write. Re-fetch the token once and retry once.
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != KindConflict {
		return nil, err
	}

	u.logger.Warn("Write token stale, re-fetching and retrying once",
		logger.String("path", remotePath))

	freshSHA, found, gerr := u.getFileSHA(ctx, remotePath)
	if gerr != nil {
		return nil, gerr
	}
	if found && freshSHA == localSHA {
		return u.noopRecord(ctx, remotePath, localSHA)
	}

	record, err = u.putFile(ctx, remotePath, content, freshSHA)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// noopRecord reports an already-archived artifact without writing a new
// revision. The current head revision touching the path is looked up so
// the caller still gets a revision identifier.
func (u *Uploader) noopRecord(ctx context.Context, remotePath, sha string) (*Record, error) {
	revision, err := u.latestRevision(ctx, remotePath)
	if err != nil {
		u.logger.Warn("Failed to resolve revision for already-archived artifact",
			logger.String("path", remotePath), logger.Error(err))
		revision = ""
	}

	u.logger.Info("Artifact already archived with identical content, skipping upload",
		logger.String("path", remotePath),
		logger.String("revision", revision))

	return &Record{
		RemotePath: remotePath,
		Revision:   revision,
		ContentSHA: sha,
		UploadedAt: time.Now(),
	}, nil
}

// getFileSHA fetches the blob SHA of the object at the path, if present.
func (u *Uploader) getFileSHA(ctx context.Context, remotePath string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		u.apiBase, u.config.Owner, u.config.Repo, remotePath, url.QueryEscape(u.config.Branch))

	body, status, err := u.doWithRetry(ctx, http.MethodGet, endpoint, nil, remotePath)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status != http.StatusOK {
		return "", false, &Error{Kind: KindExhausted, Path: remotePath, StatusCode: status,
			Err: fmt.Errorf("unexpected status fetching object: %d", status)}
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false, fmt.Errorf("failed to parse contents response: %w", err)
	}
	return payload.SHA, true, nil
}

// latestRevision returns the head commit SHA touching the path.
func (u *Uploader) latestRevision(ctx context.Context, remotePath string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits?path=%s&sha=%s&per_page=1",
		u.apiBase, u.config.Owner, u.config.Repo, url.QueryEscape(remotePath), url.QueryEscape(u.config.Branch))

	body, status, err := u.doWithRetry(ctx, http.MethodGet, endpoint, nil, remotePath)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("unexpected status listing commits: %d", status)
	}

	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &commits); err != nil {
		return "", fmt.Errorf("failed to parse commits response: %w", err)
	}
	if len(commits) == 0 {
		return "", nil
	}
	return commits[0].SHA, nil
}

// putFile writes the object. An empty sha creates; a non-empty sha updates
// with that concurrency token. 409/422 surface as KindConflict so the
// caller can run the single token-refresh retry.
func (u *Uploader) putFile(ctx context.Context, remotePath string, content []byte, sha string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		u.apiBase, u.config.Owner, u.config.Repo, remotePath)

	payload := map[string]string{
		"message": fmt.Sprintf("Add call record %s", path.Base(remotePath)),
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  u.config.Branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload payload: %w", err)
	}

	body, status, err := u.doWithRetry(ctx, http.MethodPut, endpoint, reqBody, remotePath)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return nil, &Error{Kind: KindConflict, Path: remotePath, StatusCode: status,
			Err: fmt.Errorf("write token rejected")}
	default:
		return nil, &Error{Kind: KindExhausted, Path: remotePath, StatusCode: status,
			Err: fmt.Errorf("unexpected status writing object: %d", status)}
	}

	var resp struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	record := &Record{
		RemotePath: remotePath,
		Revision:   resp.Commit.SHA,
		ContentSHA: resp.Content.SHA,
		UploadedAt: time.Now(),
	}

	u.logger.Info("Artifact archived",
		logger.String("path", record.RemotePath),
		logger.String("revision", record.Revision),
		logger.Int("bytes", len(content)))

	return record, nil
}

// doWithRetry executes the request with bounded retry on transient
// failures (network errors, 5xx, rate limiting). Non-transient statuses
// are returned to the caller for interpretation.
func (u *Uploader) doWithRetry(ctx context.Context, method, endpoint string, reqBody []byte, remotePath string) ([]byte, int, error) {
	maxAttempts := u.config.RetryMaxAttempts
	backoff := time.Duration(u.config.RetryInitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(u.config.RetryMaxBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+u.config.Token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := u.httpClient.Do(req)
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			} else if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			} else {
				return body, resp.StatusCode, nil
			}
		} else {
			lastErr = fmt.Errorf("failed to execute request: %w", err)
		}

		if attempt == maxAttempts {
			break
		}

		u.logger.Warn("Transient archive failure, retrying",
			logger.String("method", method),
			logger.String("path", remotePath),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", maxAttempts),
			logger.Duration("backoff", backoff),
			logger.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, 0, &Error{Kind: KindExhausted, Path: remotePath, Err: lastErr}
}
