package search

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/evaluate"
)

// MoveScore is one root move with its full-window score.
type MoveScore struct {
	Move  board.Move
	Score evaluate.Score
	PV    []board.Move // Root move first
}

// SearchMoves scores every legal root move with an independent full-window
// search of depth-1 plies below it, one goroutine per move. Results are
// ordered best first; ties keep generator order.
func (s *Searcher) SearchMoves(ctx context.Context, p board.Position, depth int) ([]MoveScore, int64, error) {
	if err := s.checkDepth(depth); err != nil {
		return nil, 0, err
	}
	if depth == 0 {
		return nil, 0, nil
	}

	moves := p.LegalMoves()
	children := make([]board.Position, len(moves))
	for i, m := range moves {
		children[i] = p.Apply(m)
	}

	out := make([]MoveScore, len(moves))
	var total int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range moves {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var nodes int64
			score, line := s.negamax(children[i], depth-1, evaluate.ScoreMin, evaluate.ScoreMax, &nodes)
			atomic.AddInt64(&total, nodes)

			pv := make([]board.Move, 0, len(line)+1)
			pv = append(pv, moves[i])
			pv = append(pv, reverse(line)...)
			out[i] = MoveScore{Move: moves[i], Score: evaluate.Negate(score), PV: pv}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, atomic.LoadInt64(&total), err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, total, nil
}
