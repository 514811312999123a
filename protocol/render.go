package protocol

import (
	"strconv"
	"strings"
)

// GoCommand renders a search command. A positive depth bounds the search;
// anything else requests an open-ended search terminated only by `stop`.
func GoCommand(depth int) string {
	if depth > 0 {
		return "go depth " + strconv.Itoa(depth)
	}
	return "go infinite"
}

// PositionCommand renders a position command. The empty string, the literal
// "startpos", and the standard initial FEN all render as `position startpos`;
// any other base renders as `position fen <fen>`. Moves, if any, are appended
// in order.
func PositionCommand(fen string, moves []string) string {
	var b strings.Builder
	if fen == "" || fen == "startpos" || fen == StartingFEN {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(fen)
	}
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	return b.String()
}

// SetOptionCommand renders `setoption name <name> value <value>`. Button
// options carry no value; pass the empty string to omit the value clause.
func SetOptionCommand(name, value string) string {
	if value == "" {
		return "setoption name " + name
	}
	return "setoption name " + name + " value " + value
}
