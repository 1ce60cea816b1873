package transcription

import (
	"errors"
	"fmt"
)

// Kind classifies a transcription failure.
type Kind int

const (
	// KindRejected - the provider rejected the content (4xx). Retrying
	// cannot fix it; the artifact is preserved for manual handling.
	KindRejected Kind = iota + 1
	// KindExhausted - transient failures outlasted the retry budget.
	KindExhausted
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a transcription stage failure.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int // last HTTP status observed, 0 for network errors
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription %s (provider=%s, attempts=%d): %v",
		e.Kind, e.Provider, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// statusError carries a non-2xx provider response through the retry loop
// so it can be classified as transient or permanent.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, e.body)
}

func asStatusError(err error) (*statusError, bool) {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

// transient reports whether the failure is expected to resolve on retry:
// network errors, 5xx responses and rate-limit signals.
func transient(err error) bool {
	serr, ok := asStatusError(err)
	if !ok {
		return true // network-layer failure
	}
	return serr.code >= 500 || serr.code == 429
}
