package archive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katu09161004/tel-addapter/pkg/logger"
)

func testConfig() Config {
	return Config{
		Token:                 "ghp_test",
		Owner:                 "example-lab",
		Repo:                  "call-records",
		Branch:                "main",
		BasePath:              "call_records",
		RetryMaxAttempts:      4,
		RetryInitialBackoffMs: 1,
		RetryMaxBackoffMs:     4,
	}
}

func newTestUploader(server *httptest.Server) *Uploader {
	u := NewUploader(testConfig(), logger.Nop())
	u.apiBase = server.URL
	return u
}

type putPayload struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha"`
}

func putResponse(contentSHA, commitSHA string) string {
	return fmt.Sprintf(`{"content": {"sha": %q}, "commit": {"sha": %q}}`, contentSHA, commitSHA)
}

func TestUploadCreatesAbsentObject(t *testing.T) {
	content := []byte("transcript body")
	var gotPut putPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
			http.NotFound(w, r)
		case r.Method == http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPut))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(putResponse(blobSHA(content), "commit-1")))
		}
	}))
	defer server.Close()

	record, err := newTestUploader(server).Upload(context.Background(), content, "call_records/20260301_120000.md")
	require.NoError(t, err)

	assert.Equal(t, "call_records/20260301_120000.md", record.RemotePath)
	assert.Equal(t, "commit-1", record.Revision)
	assert.Equal(t, blobSHA(content), record.ContentSHA)
	assert.False(t, record.UploadedAt.IsZero())

	assert.Equal(t, "main", gotPut.Branch)
	assert.Empty(t, gotPut.SHA, "create must not carry a concurrency token")
	assert.Contains(t, gotPut.Message, "20260301_120000.md")
	decoded, err := base64.StdEncoding.DecodeString(gotPut.Content)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestUploadIdenticalContentIsIdempotent(t *testing.T) {
	content := []byte("transcript body")
	var puts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			puts.Add(1)
			http.Error(w, "unexpected write", http.StatusInternalServerError)
		case strings.Contains(r.URL.Path, "/commits"):
			w.Write([]byte(`[{"sha": "head-commit"}]`))
		default:
			w.Write([]byte(fmt.Sprintf(`{"sha": %q}`, blobSHA(content))))
		}
	}))
	defer server.Close()

	uploader := newTestUploader(server)

	first, err := uploader.Upload(context.Background(), content, "call_records/20260301_120000.md")
	require.NoError(t, err)
	second, err := uploader.Upload(context.Background(), content, "call_records/20260301_120000.md")
	require.NoError(t, err)

	assert.Equal(t, int32(0), puts.Load(), "identical content must not produce a new revision")
	assert.Equal(t, "head-commit", first.Revision)
	assert.Equal(t, first.Revision, second.Revision, "revision identifier must not change")
}

func TestUploadDifferentContentIsPathConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			http.Error(w, "unexpected write", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"sha": "sha-of-other-content"}`))
	}))
	defer server.Close()

	_, err := newTestUploader(server).Upload(context.Background(), []byte("new content"), "call_records/20260301_120000.md")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindPathConflict, aerr.Kind)
	assert.Equal(t, "call_records/20260301_120000.md", aerr.Path)
}

func TestUploadStaleTokenRetriesOnceWithFreshToken(t *testing.T) {
	content := []byte("transcript body")
	var puts atomic.Int32
	var gets atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// Absent on the first check, present by the time of the
			// token re-fetch.
			if gets.Add(1) == 1 {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"sha": "fresh-token"}`))
		case http.MethodPut:
			var p putPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			if puts.Add(1) == 1 {
				w.WriteHeader(http.StatusConflict)
				return
			}
			assert.Equal(t, "fresh-token", p.SHA, "retry must carry the re-fetched token")
			w.Write([]byte(putResponse(blobSHA(content), "commit-2")))
		}
	}))
	defer server.Close()

	record, err := newTestUploader(server).Upload(context.Background(), content, "call_records/20260301_120000.md")
	require.NoError(t, err)
	assert.Equal(t, "commit-2", record.Revision)
	assert.Equal(t, int32(2), puts.Load())
}

func TestUploadRepeatedStaleTokenIsConflict(t *testing.T) {
	var puts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			puts.Add(1)
			w.WriteHeader(http.StatusConflict)
		}
	}))
	defer server.Close()

	_, err := newTestUploader(server).Upload(context.Background(), []byte("x"), "call_records/a.md")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindConflict, aerr.Kind)
	assert.Equal(t, int32(2), puts.Load(), "write is retried exactly once")
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	content := []byte("transcript body")
	var puts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			if puts.Add(1) <= 2 {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(putResponse(blobSHA(content), "commit-3")))
		}
	}))
	defer server.Close()

	record, err := newTestUploader(server).Upload(context.Background(), content, "call_records/a.md")
	require.NoError(t, err)
	assert.Equal(t, "commit-3", record.Revision)
	assert.Equal(t, int32(3), puts.Load())
}

func TestUploadExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestUploader(server).Upload(context.Background(), []byte("x"), "call_records/a.md")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindExhausted, aerr.Kind)
	assert.Equal(t, int32(4), calls.Load(), "the existence check itself respects the retry ceiling")
}

func TestDeterministicPaths(t *testing.T) {
	uploader := NewUploader(testConfig(), logger.Nop())
	start := time.Date(2026, 3, 1, 12, 0, 1, 0, time.Local)

	audio := uploader.AudioPath(start)
	transcript := uploader.TranscriptPath(start)

	assert.Equal(t, "call_records/20260301_120001.wav", audio)
	assert.Equal(t, "call_records/20260301_120001.md", transcript)
	assert.NotEqual(t, audio, transcript, "the two artifacts of one call never collide")

	// Second-level resolution keeps different calls apart.
	assert.NotEqual(t, audio, uploader.AudioPath(start.Add(time.Second)))
}

func TestBlobSHAMatchesGit(t *testing.T) {
	// git hash-object of "hello\n"
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", blobSHA([]byte("hello\n")))
}
