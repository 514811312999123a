// Package protocol implements the text grammar of the Universal Chess
// Interface (UCI) as pure functions: parsers from engine output lines to
// structured values, and renderers from structured commands to protocol text.
//
// The package performs no I/O and holds no state. Parsers are tolerant where
// the protocol is extensible (unknown info keys are preserved verbatim in
// [SearchProgress.Extra], malformed option lines are reported as a non-match)
// and strict where a line is load-bearing ([ParseBestMove] fails hard, since
// the session cannot recover from an ambiguous search termination).
package protocol
