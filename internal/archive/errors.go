package archive

import "fmt"

// Kind classifies an archive failure.
type Kind int

const (
	// KindConflict - the optimistic-concurrency token went stale and the
	// single retry with a fresh token also failed.
	KindConflict Kind = iota + 1
	// KindPathConflict - an object with different content already exists
	// at the target path. Nothing is overwritten.
	KindPathConflict
	// KindExhausted - transient failures outlasted the retry budget.
	KindExhausted
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindPathConflict:
		return "pathConflict"
	case KindExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is an archive stage failure. Local artifacts are always preserved;
// conflict and exhausted are retryable by re-invoking the upload.
type Error struct {
	Kind       Kind
	Path       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive %s (path=%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("archive %s (path=%s)", e.Kind, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }
