package reference

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/evaluate"
)

// BatchConfig configures a Batch evaluator.
type BatchConfig struct {
	StockfishPath string
	Logger        zerolog.Logger
	Depth         int // Stockfish search depth
	HashMB        int // Stockfish hash table size
	Threads       int // Stockfish threads
}

// Batch evaluates with github.com/freeeve/uci, which waits for the whole
// search and returns only the deepest result.
type Batch struct {
	cfg BatchConfig
	log zerolog.Logger

	mu     sync.Mutex
	engine *uci.Engine
}

// NewBatch starts Stockfish and applies the options.
func NewBatch(cfg BatchConfig) (*Batch, error) {
	if cfg.StockfishPath == "" {
		return nil, fmt.Errorf("stockfish path required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 12
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 128
	}
	if cfg.Threads == 0 {
		cfg.Threads = 4
	}

	eng, err := uci.NewEngine(cfg.StockfishPath)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := eng.SetOptions(opts); err != nil {
		eng.Close()
		return nil, fmt.Errorf("set options: %w", err)
	}

	log := cfg.Logger.With().Str("component", "reference").Logger()
	log.Info().Int("depth", cfg.Depth).Int("threads", cfg.Threads).Int("hash_mb", cfg.HashMB).Msg("batch engine started")

	return &Batch{cfg: cfg, log: log, engine: eng}, nil
}

// Evaluate blocks for the whole search; ctx is only checked before it starts.
func (b *Batch) Evaluate(ctx context.Context, fen string) (Eval, error) {
	if err := ctx.Err(); err != nil {
		return Eval{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.engine.SetFEN(fen); err != nil {
		return Eval{}, fmt.Errorf("set FEN: %w", err)
	}
	results, err := b.engine.GoDepth(b.cfg.Depth, uci.HighestDepthOnly)
	if err != nil {
		return Eval{}, fmt.Errorf("stockfish eval: %w", err)
	}
	if len(results.Results) == 0 {
		return Eval{}, fmt.Errorf("no results from engine")
	}

	best := results.Results[0]
	for _, r := range results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}

	ev := Eval{
		Score:      evaluate.Score(best.Score),
		Centipawns: best.Score,
		Mate:       best.Mate,
		Depth:      best.Depth,
		BestMove:   results.BestMove,
	}
	if best.Mate {
		ev.Score = evaluate.ScoreMin
		if best.Score > 0 {
			ev.Score = evaluate.ScoreMax
		}
	}

	b.log.Debug().Str("fen", fen).Int("cp", best.Score).Bool("mate", best.Mate).Msg("evaluated")
	return ev, nil
}

func (b *Batch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Close()
	return nil
}
