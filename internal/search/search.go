// Package search implements a depth-bounded negamax search with alpha-beta
// pruning over board positions.
//
// Every score is from the point of view of the side to move. A checkmated
// side to move scores evaluate.ScoreMin; the parent negates it into
// evaluate.ScoreMax. Stalemate scores zero.
package search

import (
	"errors"
	"fmt"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/evaluate"
)

// DefaultMaxDepth caps the requested depth when Config.MaxDepth is zero.
const DefaultMaxDepth = 8

// ErrDepth is returned for a negative depth or one above the configured cap.
var ErrDepth = errors.New("search: depth out of range")

// Evaluator scores a quiet position from the side to move's point of view.
type Evaluator interface {
	Relative(p board.Position) evaluate.Score
}

// Config configures a Searcher.
type Config struct {
	MaxDepth       int       // Hard depth cap (0 = DefaultMaxDepth)
	Evaluator      Evaluator // Leaf evaluator (nil = evaluate.Evaluator{})
	DisablePruning bool      // Exhaustive minimax, for cross-checking
}

// Searcher runs searches. It holds no mutable state and may be shared by
// goroutines, each searching its own position.
type Searcher struct {
	cfg Config
}

// New creates a Searcher.
func New(cfg Config) *Searcher {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = evaluate.Evaluator{}
	}
	return &Searcher{cfg: cfg}
}

// MaxDepth returns the configured depth cap.
func (s *Searcher) MaxDepth() int { return s.cfg.MaxDepth }

// Result is the outcome of a search.
type Result struct {
	Score evaluate.Score // Side-to-move score at the root
	PV    []board.Move   // Principal variation, root move first
	Nodes int64          // Positions visited
}

// BestMove returns the first move of the principal variation.
func (r Result) BestMove() (board.Move, bool) {
	if len(r.PV) == 0 {
		return board.NoMove, false
	}
	return r.PV[0], true
}

// Search searches p to the given depth with a full window.
func (s *Searcher) Search(p board.Position, depth int) (Result, error) {
	if err := s.checkDepth(depth); err != nil {
		return Result{}, err
	}

	var nodes int64
	score, line := s.negamax(p, depth, evaluate.ScoreMin, evaluate.ScoreMax, &nodes)
	return Result{Score: score, PV: reverse(line), Nodes: nodes}, nil
}

func (s *Searcher) checkDepth(depth int) error {
	if depth < 0 || depth > s.cfg.MaxDepth {
		return fmt.Errorf("%w: %d (max %d)", ErrDepth, depth, s.cfg.MaxDepth)
	}
	return nil
}

// negamax returns the score of p for the side to move and the best line,
// deepest move first.
func (s *Searcher) negamax(p board.Position, depth int, alpha, beta evaluate.Score, nodes *int64) (evaluate.Score, []board.Move) {
	*nodes++

	if p.IsCheckmate() {
		return evaluate.ScoreMin, nil
	}
	if p.IsStalemate() {
		return 0, nil
	}
	if depth == 0 {
		return s.cfg.Evaluator.Relative(p), nil
	}

	var (
		best  evaluate.Score
		line  []board.Move
		found bool
	)
	for _, m := range p.LegalMoves() {
		childScore, childLine := s.negamax(p.Apply(m), depth-1, evaluate.Negate(beta), evaluate.Negate(alpha), nodes)
		score := evaluate.Negate(childScore)

		if !found || score > best {
			found = true
			best = score
			line = make([]board.Move, 0, len(childLine)+1)
			line = append(line, childLine...)
			line = append(line, m)
		}
		if best > alpha {
			alpha = best
		}
		if alpha >= beta && !s.cfg.DisablePruning {
			break
		}
	}

	if !found {
		return evaluate.ScoreMin, nil
	}
	return best, line
}

func reverse(line []board.Move) []board.Move {
	out := make([]board.Move, len(line))
	for i, m := range line {
		out[len(line)-1-i] = m
	}
	return out
}
