package ucisession

import (
	"errors"
	"strconv"
)

// Sentinel errors for session operations.
var (
	// ErrSpawn indicates the engine binary could not be launched
	// (bad path, missing execute permission).
	ErrSpawn = errors.New("ucisession: engine could not be started")

	// ErrHandshakeTimeout indicates the engine did not complete the
	// uci/uciok or isready/readyok exchange in time. Fatal to Start and
	// NewGame; steady-state operations carry no timeout by design.
	ErrHandshakeTimeout = errors.New("ucisession: handshake timed out")

	// ErrProtocol indicates a load-bearing engine line (bestmove) could
	// not be parsed. The session cannot know whether the search finished.
	ErrProtocol = errors.New("ucisession: protocol violation")

	// ErrInvalidTransition indicates an operation is not valid in the
	// session's current state (e.g. SetOption while a search runs).
	// Fatal to that call only; the session is otherwise unaffected.
	ErrInvalidTransition = errors.New("ucisession: operation invalid in current state")

	// ErrNotRunning indicates a write was attempted with no live engine
	// process.
	ErrNotRunning = errors.New("ucisession: engine process not running")

	// ErrEngineExited indicates the engine process ended while an
	// operation was outstanding. The pending result is rejected, never
	// left unresolved.
	ErrEngineExited = errors.New("ucisession: engine exited")
)

// ExitError represents an engine process that exited with a non-zero
// status. Wraps the underlying error to preserve the chain — consumers can
// errors.As to *exec.ExitError for OS-level detail.
//
// Code semantics: positive = exit status, negative (-1) = signal-killed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "ucisession: exit status " + strconv.Itoa(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the exit code from an error chain containing *ExitError.
// Returns (0, false) if the chain has none.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
