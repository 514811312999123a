package ucisession

import (
	"time"

	"github.com/enginekit/ucisession/protocol"
)

// EventType identifies the kind of event on the session's event stream.
type EventType string

const (
	// EventStateChanged reports an analysis state machine transition.
	EventStateChanged EventType = "state_changed"

	// EventProgress carries a batch of search progress records, one per
	// candidate move, flushed on a fixed interval or on search end.
	EventProgress EventType = "progress"

	// EventExited reports that the engine process ended. The session does
	// not restart it; the consumer decides what happens next.
	EventExited EventType = "exited"

	// EventError reports a non-call-scoped failure, such as an unparsable
	// bestmove line.
	EventError EventType = "error"
)

// Event is a structured notification from a Session.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// From and To describe a state transition (EventStateChanged).
	From State `json:"from,omitempty"`
	To   State `json:"to,omitempty"`

	// Progress is the flushed batch (EventProgress), ordered by MultiPV
	// index then candidate move.
	Progress []protocol.SearchProgress `json:"progress,omitempty"`

	// Err carries the terminal or protocol error (EventExited, EventError).
	Err error `json:"-"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

// SearchResult is the eventual outcome of Go, Stop, or Position.
type SearchResult struct {
	// Best is the engine's final answer. Zero when the operation resolved
	// immediately (open-ended Go, or Stop/Position while idle) or on error.
	Best protocol.BestMove

	// Err is non-nil when the operation could not complete: the engine
	// exited, a bestmove line was unparsable, or the call was invalid in
	// the current state.
	Err error
}
