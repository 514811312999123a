package protocol

import "time"

// StartingFEN is the FEN of the standard initial chess position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// OptionType identifies the kind of a UCI option as declared by the engine.
type OptionType string

const (
	OptionString OptionType = "string"
	OptionSpin   OptionType = "spin"
	OptionButton OptionType = "button"
	OptionCheck  OptionType = "check"
	OptionCombo  OptionType = "combo"
)

// Option describes one configurable engine parameter, as announced by an
// `option name ... type ...` line during the handshake.
type Option struct {
	// Name is the option identifier. May contain spaces.
	Name string `json:"name"`

	// Type is the declared option kind.
	Type OptionType `json:"type"`

	// Default is the declared default value, verbatim. Empty if absent.
	Default string `json:"default,omitempty"`

	// Min and Max bound spin options. Valid only when HasMin/HasMax are set.
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`

	HasMin bool `json:"has_min,omitempty"`
	HasMax bool `json:"has_max,omitempty"`
}

// Identity is the engine's self-description collected once during the
// handshake. Immutable after the handshake completes.
type Identity struct {
	// Name is the engine name from `id name ...`. Empty if never sent.
	Name string `json:"name,omitempty"`

	// Author is the engine author from `id author ...`. Empty if never sent.
	Author string `json:"author,omitempty"`

	// Options are the parameters the engine declared before `uciok`.
	Options []Option `json:"options,omitempty"`
}

// ScoreType identifies how a score value is expressed.
type ScoreType string

const (
	// ScoreCentipawns is a material-equivalent evaluation in 1/100 pawn units.
	ScoreCentipawns ScoreType = "cp"

	// ScoreMate is a forced-mate distance in moves; negative means the side
	// to move is being mated.
	ScoreMate ScoreType = "mate"
)

// Bound qualifies a work-in-progress score as a lower or upper bound.
type Bound string

const (
	BoundNone  Bound = ""
	BoundLower Bound = "lowerbound"
	BoundUpper Bound = "upperbound"
)

// Score is an engine evaluation from an info line.
type Score struct {
	Type  ScoreType `json:"type"`
	Value int       `json:"value"`

	// Bound is set only on non-final search lines.
	Bound Bound `json:"bound,omitempty"`
}

// SearchProgress is one parsed `info ...` report. All fields are optional on
// the wire; absent numeric fields are zero and an absent score is nil.
type SearchProgress struct {
	Depth          int           `json:"depth,omitempty"`
	SelDepth       int           `json:"seldepth,omitempty"`
	MultiPV        int           `json:"multipv,omitempty"`
	Score          *Score        `json:"score,omitempty"`
	Nodes          uint64        `json:"nodes,omitempty"`
	NPS            uint64        `json:"nps,omitempty"`
	HashFull       int           `json:"hashfull,omitempty"`
	TBHits         uint64        `json:"tbhits,omitempty"`
	Elapsed        time.Duration `json:"elapsed,omitempty"`
	PV             []string      `json:"pv,omitempty"`
	CurrMove       string        `json:"currmove,omitempty"`
	CurrMoveNumber int           `json:"currmovenumber,omitempty"`

	// Extra holds unrecognized key/value pairs verbatim. The protocol is
	// extensible; unknown keys must survive parsing.
	Extra map[string]string `json:"extra,omitempty"`
}

// BestMove is the engine's final answer for a search. Move may be the
// literal "(none)" when the position has no legal moves.
type BestMove struct {
	Move   string `json:"move"`
	Ponder string `json:"ponder,omitempty"`
}
