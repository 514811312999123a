package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotInfo reports that a line handed to ParseInfo is not a progress
// report at all (wrong leading keyword). Distinguishes "not for me" from a
// malformed report.
var ErrNotInfo = errors.New("protocol: not a progress line")

// ParseInfo parses one `info ...` progress report.
//
// Tokens are walked left to right. Known keys consume a fixed number of
// following tokens; `pv` consumes everything that remains; unknown keys
// consume exactly one following token and are preserved in Extra so that
// engine-specific extensions are never dropped.
func ParseInfo(line string) (SearchProgress, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return SearchProgress{}, ErrNotInfo
	}

	var sp SearchProgress
	for i := 1; i < len(fields); i++ {
		key := fields[i]
		switch key {
		case "depth", "seldepth", "multipv", "hashfull", "currmovenumber":
			n, adv, err := takeInt(fields, i)
			if err != nil {
				return SearchProgress{}, err
			}
			i += adv
			switch key {
			case "depth":
				sp.Depth = n
			case "seldepth":
				sp.SelDepth = n
			case "multipv":
				sp.MultiPV = n
			case "hashfull":
				sp.HashFull = n
			case "currmovenumber":
				sp.CurrMoveNumber = n
			}

		case "nodes", "nps", "tbhits":
			n, adv, err := takeUint(fields, i)
			if err != nil {
				return SearchProgress{}, err
			}
			i += adv
			switch key {
			case "nodes":
				sp.Nodes = n
			case "nps":
				sp.NPS = n
			case "tbhits":
				sp.TBHits = n
			}

		case "time":
			n, adv, err := takeInt(fields, i)
			if err != nil {
				return SearchProgress{}, err
			}
			i += adv
			sp.Elapsed = time.Duration(n) * time.Millisecond

		case "currmove":
			if i+1 >= len(fields) {
				return SearchProgress{}, fmt.Errorf("protocol: info key %q missing value", key)
			}
			sp.CurrMove = fields[i+1]
			i++

		case "score":
			score, adv, err := parseScore(fields, i)
			if err != nil {
				return SearchProgress{}, err
			}
			sp.Score = &score
			i += adv

		case "pv":
			// pv consumes the remainder of the line.
			sp.PV = append([]string(nil), fields[i+1:]...)
			return sp, nil

		case "string":
			// Informational text; keep verbatim and stop walking.
			if sp.Extra == nil {
				sp.Extra = make(map[string]string)
			}
			sp.Extra["string"] = strings.Join(fields[i+1:], " ")
			return sp, nil

		default:
			// Unknown key: consume exactly one following token verbatim.
			if i+1 >= len(fields) {
				return SearchProgress{}, fmt.Errorf("protocol: info key %q missing value", key)
			}
			if sp.Extra == nil {
				sp.Extra = make(map[string]string)
			}
			sp.Extra[key] = fields[i+1]
			i++
		}
	}
	return sp, nil
}

// parseScore handles `score cp <v>` / `score mate <v>`, optionally followed
// by `lowerbound` or `upperbound`. Returns how many tokens after fields[i]
// were consumed.
func parseScore(fields []string, i int) (Score, int, error) {
	if i+2 >= len(fields) {
		return Score{}, 0, fmt.Errorf("protocol: truncated score in %q", strings.Join(fields, " "))
	}
	var score Score
	switch fields[i+1] {
	case "cp":
		score.Type = ScoreCentipawns
	case "mate":
		score.Type = ScoreMate
	default:
		return Score{}, 0, fmt.Errorf("protocol: unknown score kind %q", fields[i+1])
	}
	v, err := strconv.Atoi(fields[i+2])
	if err != nil {
		return Score{}, 0, fmt.Errorf("protocol: score value %q: %w", fields[i+2], err)
	}
	score.Value = v
	adv := 2
	if i+3 < len(fields) {
		switch fields[i+3] {
		case "lowerbound":
			score.Bound = BoundLower
			adv = 3
		case "upperbound":
			score.Bound = BoundUpper
			adv = 3
		}
	}
	return score, adv, nil
}

func takeInt(fields []string, i int) (int, int, error) {
	if i+1 >= len(fields) {
		return 0, 0, fmt.Errorf("protocol: info key %q missing value", fields[i])
	}
	n, err := strconv.Atoi(fields[i+1])
	if err != nil {
		return 0, 0, fmt.Errorf("protocol: info key %q: value %q: %w", fields[i], fields[i+1], err)
	}
	return n, 1, nil
}

func takeUint(fields []string, i int) (uint64, int, error) {
	if i+1 >= len(fields) {
		return 0, 0, fmt.Errorf("protocol: info key %q missing value", fields[i])
	}
	n, err := strconv.ParseUint(fields[i+1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("protocol: info key %q: value %q: %w", fields[i], fields[i+1], err)
	}
	return n, 1, nil
}

// ParseBestMove parses `bestmove <move> [ponder <move>]`. Malformed lines
// are a hard error: this line terminates a search and the caller cannot
// guess what the engine meant.
func ParseBestMove(line string) (BestMove, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "bestmove" {
		return BestMove{}, fmt.Errorf("protocol: not a bestmove line: %q", line)
	}
	if len(fields) < 2 {
		return BestMove{}, fmt.Errorf("protocol: bestmove missing move: %q", line)
	}
	bm := BestMove{Move: fields[1]}
	if len(fields) >= 3 {
		if fields[2] != "ponder" {
			return BestMove{}, fmt.Errorf("protocol: unexpected bestmove token %q", fields[2])
		}
		if len(fields) < 4 {
			return BestMove{}, fmt.Errorf("protocol: ponder missing move: %q", line)
		}
		bm.Ponder = fields[3]
	}
	return bm, nil
}

// ParseOption parses `option name <name> type <kind> [default <v>] [min <v>]
// [max <v>]`. A line that does not match returns ok=false rather than an
// error: option discovery degrades gracefully and must not abort a handshake.
func ParseOption(line string) (Option, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "option" || fields[1] != "name" {
		return Option{}, false
	}

	// The name runs from after "name" up to the "type" keyword and may
	// contain spaces.
	typeIdx := -1
	for i := 2; i < len(fields); i++ {
		if fields[i] == "type" {
			typeIdx = i
			break
		}
	}
	if typeIdx <= 2 || typeIdx+1 >= len(fields) {
		return Option{}, false
	}

	opt := Option{Name: strings.Join(fields[2:typeIdx], " ")}
	switch t := OptionType(fields[typeIdx+1]); t {
	case OptionString, OptionSpin, OptionButton, OptionCheck, OptionCombo:
		opt.Type = t
	default:
		return Option{}, false
	}

	for i := typeIdx + 2; i+1 < len(fields); i++ {
		switch fields[i] {
		case "default":
			opt.Default = fields[i+1]
			i++
		case "min":
			if n, err := strconv.Atoi(fields[i+1]); err == nil {
				opt.Min = n
				opt.HasMin = true
			}
			i++
		case "max":
			if n, err := strconv.Atoi(fields[i+1]); err == nil {
				opt.Max = n
				opt.HasMax = true
			}
			i++
		}
	}
	return opt, true
}

// ParseID parses `id name <text>` / `id author <text>`. Returns ok=false for
// anything else.
func ParseID(line string) (field, value string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "id" {
		return "", "", false
	}
	if fields[1] != "name" && fields[1] != "author" {
		return "", "", false
	}
	return fields[1], strings.Join(fields[2:], " "), true
}
