package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wspeirs/fishermann/internal/evaluate"
)

// Analysis is one message of an analysis stream: a CandidateLine or the
// terminal BestMove.
type Analysis interface {
	isAnalysis()
}

// CandidateLine is one "info" report. Fields the engine did not send keep
// their zero value; MultiPV defaults to 1.
type CandidateLine struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Nodes    int64
	HasScore bool
	Score    int  // Centipawns from the side to move, valid when !IsMate
	IsMate   bool // Score is a mate distance
	Mate     int  // Moves to mate; negative when the side to move is mated
	PV       []string
	Text     string // Payload of "info string"
}

// BestMove is the final message of an analysis.
type BestMove struct {
	Move   string
	Ponder string
}

func (CandidateLine) isAnalysis() {}
func (BestMove) isAnalysis()      {}

// Value converts the reported score onto the evaluate scale. Mate scores map
// to the sentinels.
func (c CandidateLine) Value() evaluate.Score {
	if c.IsMate {
		if c.Mate > 0 {
			return evaluate.ScoreMax
		}
		return evaluate.ScoreMin
	}
	return evaluate.Score(c.Score)
}

// First returns the first move of the line, or "" when there is no PV.
func (c CandidateLine) First() string {
	if len(c.PV) == 0 {
		return ""
	}
	return c.PV[0]
}

// None reports the "bestmove (none)" reply sent for positions without legal moves.
func (b BestMove) None() bool { return b.Move == "" || b.Move == "(none)" || b.Move == "0000" }

// parseAnalysis classifies one line read during a search.
func parseAnalysis(line string) (Analysis, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrProtocol)
	}
	switch fields[0] {
	case "info":
		return parseInfo(fields), nil
	case "bestmove":
		return parseBestMove(fields)
	}
	return nil, fmt.Errorf("%w: unexpected line during analysis: %q", ErrProtocol, line)
}

func parseBestMove(fields []string) (BestMove, error) {
	if len(fields) < 2 {
		return BestMove{}, fmt.Errorf("%w: bestmove without a move", ErrProtocol)
	}
	bm := BestMove{Move: fields[1]}
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			bm.Ponder = fields[i+1]
			break
		}
	}
	return bm, nil
}

// parseInfo decodes the attributes of an info line. Unknown attributes and
// malformed numbers are skipped.
func parseInfo(fields []string) CandidateLine {
	c := CandidateLine{MultiPV: 1}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				c.Depth = atoi(fields[i+1], c.Depth)
				i++
			}
		case "seldepth":
			if i+1 < len(fields) {
				c.SelDepth = atoi(fields[i+1], c.SelDepth)
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				c.MultiPV = atoi(fields[i+1], c.MultiPV)
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				if n, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					c.Nodes = n
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				if v, err := strconv.Atoi(fields[i+2]); err == nil {
					switch fields[i+1] {
					case "cp":
						c.HasScore, c.IsMate, c.Score = true, false, v
					case "mate":
						c.HasScore, c.IsMate, c.Mate = true, true, v
					}
				}
				i += 2
			}
		case "pv":
			c.PV = append([]string(nil), fields[i+1:]...)
			return c
		case "string":
			c.Text = strings.Join(fields[i+1:], " ")
			return c
		}
	}
	return c
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Identity is what the engine reported in its "id" lines.
type Identity struct {
	Name   string
	Author string
}

// OptionInfo describes one advertised "option" line.
type OptionInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Default string   `json:"default,omitempty"`
	Min     string   `json:"min,omitempty"`
	Max     string   `json:"max,omitempty"`
	Vars    []string `json:"vars,omitempty"`
}

var optionKeywords = map[string]bool{
	"name": true, "type": true, "default": true, "min": true, "max": true, "var": true,
}

// parseOption decodes "option name <n> type <t> [default <d>] [min] [max] [var]*".
// Names and values may contain spaces.
func parseOption(line string) (OptionInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "option" {
		return OptionInfo{}, false
	}

	var (
		o   OptionInfo
		key string
		val []string
	)
	flush := func() {
		v := strings.Join(val, " ")
		switch key {
		case "name":
			o.Name = v
		case "type":
			o.Type = v
		case "default":
			o.Default = v
		case "min":
			o.Min = v
		case "max":
			o.Max = v
		case "var":
			o.Vars = append(o.Vars, v)
		}
		val = val[:0]
	}
	for _, f := range fields[1:] {
		if optionKeywords[f] {
			flush()
			key = f
			continue
		}
		val = append(val, f)
	}
	flush()

	// Some engines spell an empty string default as "<empty>".
	if o.Default == "<empty>" {
		o.Default = ""
	}
	return o, o.Name != ""
}

// parseID fills id from an "id name ..." or "id author ..." line.
func parseID(line string, id *Identity) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "id" {
		return
	}
	v := strings.Join(fields[2:], " ")
	switch fields[1] {
	case "name":
		id.Name = v
	case "author":
		id.Author = v
	}
}
