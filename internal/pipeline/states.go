package pipeline

import "fmt"

// State represents the orchestrator lifecycle state for one run.
type State int

const (
	// StateWaiting - between calls, nothing held.
	StateWaiting State = iota
	// StateRecording - the capture engine owns the device.
	StateRecording
	// StateTranscribing - recording finalized, provider call in flight.
	StateTranscribing
	// StateArchiving - transcript produced, uploads in flight.
	StateArchiving
	// StateDone - terminal, all stages completed.
	StateDone
	// StateFailed - terminal, reachable from any non-terminal state.
	// All artifacts produced so far stay on local storage.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateRecording:
		return "RECORDING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateArchiving:
		return "ARCHIVING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}
