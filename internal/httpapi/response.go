package httpapi

import (
	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/evaluate"
	"github.com/wspeirs/fishermann/internal/openings"
)

func statusToString(p board.Position) string {
	switch {
	case p.IsCheckmate():
		return "checkmate"
	case p.IsStalemate():
		return "stalemate"
	case p.InsufficientMaterial():
		return "insufficient-material"
	case p.HalfMoveClock() >= 100:
		return "fifty-move"
	default:
		return ""
	}
}

// PositionResponse is the JSON-friendly response for a position query.
type PositionResponse struct {
	FEN        string         `json:"fen"`
	SideToMove string         `json:"side_to_move"`      // "white" or "black"
	Status     string         `json:"status,omitempty"`  // checkmate, stalemate, insufficient-material, fifty-move
	ECO        string         `json:"eco,omitempty"`     // ECO opening code
	Opening    string         `json:"opening,omitempty"` // Opening name
	Static     ScoreResponse  `json:"static"`            // Static evaluation, side to move
	Moves      []MoveResponse `json:"moves"`
	Path       []PathNode     `json:"path,omitempty"` // Only when the moves param was used
}

type MoveResponse struct {
	SAN   string `json:"san"` // SAN notation (e.g., "e4", "Nf3")
	UCI   string `json:"uci"` // UCI notation (e.g., "e2e4")
	Child string `json:"child"`
}

// PathNode is one position on the way from the start FEN to the queried one.
type PathNode struct {
	FEN string `json:"fen"`
	UCI string `json:"uci"`
	SAN string `json:"san"`
}

// ScoreResponse is a score from the side to move's point of view.
type ScoreResponse struct {
	CP   int32 `json:"cp"`
	Mate int   `json:"mate,omitempty"` // +1 the side to move mates, -1 it is mated
}

func toScore(s evaluate.Score) ScoreResponse {
	switch s {
	case evaluate.ScoreMax:
		return ScoreResponse{CP: int32(s), Mate: 1}
	case evaluate.ScoreMin:
		return ScoreResponse{CP: int32(s), Mate: -1}
	}
	return ScoreResponse{CP: int32(s)}
}

// SearchResponse is the result of a local search.
type SearchResponse struct {
	FEN      string        `json:"fen"`
	Depth    int           `json:"depth"`
	Score    ScoreResponse `json:"score"`
	BestMove string        `json:"best_move,omitempty"`
	PV       []string      `json:"pv"`
	PVSAN    []string      `json:"pv_san"`
	Nodes    int64         `json:"nodes"`
}

// RootMoveResponse is one root move scored by a split search.
type RootMoveResponse struct {
	UCI   string        `json:"uci"`
	SAN   string        `json:"san"`
	Score ScoreResponse `json:"score"`
	PV    []string      `json:"pv"`
}

// RootMovesResponse lists every legal move best first.
type RootMovesResponse struct {
	FEN   string             `json:"fen"`
	Depth int                `json:"depth"`
	Nodes int64              `json:"nodes"`
	Moves []RootMoveResponse `json:"moves"`
}

// AnalysisEvent is one NDJSON line of /v1/analyze.
type AnalysisEvent struct {
	Type     string   `json:"type"` // "info", "bestmove" or "error"
	Depth    int      `json:"depth,omitempty"`
	SelDepth int      `json:"seldepth,omitempty"`
	MultiPV  int      `json:"multipv,omitempty"`
	Nodes    int64    `json:"nodes,omitempty"`
	CP       *int     `json:"cp,omitempty"`
	Mate     *int     `json:"mate,omitempty"`
	PV       []string `json:"pv,omitempty"`
	Text     string   `json:"text,omitempty"`
	Move     string   `json:"move,omitempty"`
	Ponder   string   `json:"ponder,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func toEvent(a engine.Analysis) AnalysisEvent {
	switch a := a.(type) {
	case engine.CandidateLine:
		ev := AnalysisEvent{
			Type:     "info",
			Depth:    a.Depth,
			SelDepth: a.SelDepth,
			MultiPV:  a.MultiPV,
			Nodes:    a.Nodes,
			PV:       a.PV,
			Text:     a.Text,
		}
		if a.HasScore {
			if a.IsMate {
				mate := a.Mate
				ev.Mate = &mate
			} else {
				cp := a.Score
				ev.CP = &cp
			}
		}
		return ev
	case engine.BestMove:
		return AnalysisEvent{Type: "bestmove", Move: a.Move, Ponder: a.Ponder}
	}
	return AnalysisEvent{Type: "error", Error: "unknown analysis message"}
}

// EngineResponse describes the attached UCI engine.
type EngineResponse struct {
	Name    string              `json:"name"`
	Author  string              `json:"author,omitempty"`
	Options []engine.OptionInfo `json:"options"`
}

// ToPositionResponse builds the response for p. db may be nil.
func ToPositionResponse(p board.Position, db *openings.Database) *PositionResponse {
	resp := &PositionResponse{
		FEN:        p.FEN(),
		SideToMove: p.SideToMove().String(),
		Status:     statusToString(p),
		Static:     toScore(evaluate.Evaluator{}.Relative(p)),
	}
	if db != nil {
		if o := db.Lookup(p); o != nil {
			resp.ECO = o.ECO
			resp.Opening = o.Name
		}
	}

	moves := p.LegalMoves()
	resp.Moves = make([]MoveResponse, 0, len(moves))
	for _, m := range moves {
		resp.Moves = append(resp.Moves, MoveResponse{
			SAN:   p.SAN(m),
			UCI:   m.UCI(),
			Child: p.Apply(m).FEN(),
		})
	}
	return resp
}
