// Package reference produces reference evaluations of positions, either
// from an external UCI engine or from the local search.
package reference

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/evaluate"
	"github.com/wspeirs/fishermann/internal/search"
)

// Eval is one evaluation, from the side to move's point of view.
type Eval struct {
	Score      evaluate.Score // Mate scores are the sentinels
	Centipawns int            // Raw engine score (mate distance when Mate)
	Mate       bool
	Depth      int
	BestMove   string // UCI, empty when the position has no legal move
}

// Evaluator evaluates positions given as FEN.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (Eval, error)
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendStream = "stream" // engine.Session, streaming adapter
	BackendBatch  = "batch"  // github.com/freeeve/uci
	BackendLocal  = "local"  // internal search
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	StockfishPath string
	Depth         int // Search depth (0 = 12 for engines, 4 for local)
	HashMB        int
	Threads       int
	Logger        zerolog.Logger
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Evaluator, error) {
	switch cfg.Backend {
	case BackendStream, "":
		if cfg.Depth == 0 {
			cfg.Depth = 12
		}
		ecfg := engine.Config{
			Path:    cfg.StockfishPath,
			Threads: cfg.Threads,
			Logger:  cfg.Logger,
		}
		if cfg.HashMB > 0 {
			ecfg.Options = append(ecfg.Options, engine.Option{Name: "Hash", Value: fmt.Sprint(cfg.HashMB)})
		}
		s, err := engine.Start(ctx, ecfg)
		if err != nil {
			return nil, err
		}
		return &Stream{session: s, depth: cfg.Depth, owned: true}, nil
	case BackendBatch:
		return NewBatch(BatchConfig{
			StockfishPath: cfg.StockfishPath,
			Depth:         cfg.Depth,
			HashMB:        cfg.HashMB,
			Threads:       cfg.Threads,
			Logger:        cfg.Logger,
		})
	case BackendLocal:
		if cfg.Depth == 0 {
			cfg.Depth = 4
		}
		return NewLocal(search.New(search.Config{}), cfg.Depth), nil
	}
	return nil, fmt.Errorf("unknown reference backend %q", cfg.Backend)
}

// Stream evaluates through an engine.Session.
type Stream struct {
	session *engine.Session
	depth   int
	owned   bool
}

// NewStream wraps an existing session. Close does not close it.
func NewStream(s *engine.Session, depth int) *Stream {
	return &Stream{session: s, depth: depth}
}

// Session returns the underlying engine session.
func (e *Stream) Session() *engine.Session { return e.session }

func (e *Stream) Evaluate(ctx context.Context, fen string) (Eval, error) {
	line, bm, err := e.session.Evaluate(ctx, fen, e.depth)
	if err != nil {
		return Eval{}, fmt.Errorf("evaluate %s: %w", fen, err)
	}
	if !line.HasScore {
		return Eval{}, fmt.Errorf("evaluate %s: engine reported no score", fen)
	}

	ev := Eval{
		Score:      line.Value(),
		Centipawns: line.Score,
		Mate:       line.IsMate,
		Depth:      line.Depth,
	}
	if line.IsMate {
		ev.Centipawns = line.Mate
	}
	if !bm.None() {
		ev.BestMove = bm.Move
	}
	return ev, nil
}

func (e *Stream) Close() error {
	if !e.owned {
		return nil
	}
	return e.session.Close()
}

// Local evaluates with the internal search.
type Local struct {
	searcher *search.Searcher
	depth    int
}

// NewLocal creates a Local evaluator searching to depth.
func NewLocal(s *search.Searcher, depth int) *Local {
	return &Local{searcher: s, depth: depth}
}

func (l *Local) Evaluate(ctx context.Context, fen string) (Eval, error) {
	if err := ctx.Err(); err != nil {
		return Eval{}, err
	}
	p, err := board.Parse(fen)
	if err != nil {
		return Eval{}, err
	}
	r, err := l.searcher.Search(p, l.depth)
	if err != nil {
		return Eval{}, err
	}

	return FromSearch(r, l.depth), nil
}

// FromSearch converts a local search result. Mates carry the distance in
// moves taken from the PV length, which is an upper bound because the search
// does not track mate distance. A checkmated root is mate in 0.
func FromSearch(r search.Result, depth int) Eval {
	ev := Eval{Score: r.Score, Centipawns: int(r.Score), Depth: depth}
	switch r.Score {
	case evaluate.ScoreMax:
		ev.Mate, ev.Centipawns = true, (len(r.PV)+1)/2
	case evaluate.ScoreMin:
		ev.Mate, ev.Centipawns = true, -(len(r.PV) / 2)
	}
	if m, ok := r.BestMove(); ok {
		ev.BestMove = m.UCI()
	}
	return ev
}

func (l *Local) Close() error { return nil }
