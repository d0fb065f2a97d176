// Package selfplay plays games against itself and records a scored position
// after every move, producing training data in the dataset format.
package selfplay

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/dataset"
	"github.com/wspeirs/fishermann/internal/reference"
	"github.com/wspeirs/fishermann/internal/search"
)

// Move choice modes.
const (
	ModeRandom = "random" // Uniform over legal moves
	ModeSearch = "search" // First move of the local search's principal variation
	ModeEngine = "engine" // Best move of the reference evaluator
)

// Game end reasons.
const (
	EndCheckmate    = "checkmate"
	EndStalemate    = "stalemate"
	EndInsufficient = "insufficient-material"
	EndFiftyMove    = "fifty-move"
	EndPlyLimit     = "ply-limit"
)

// Sink receives scored positions. *dataset.Writer implements it.
type Sink interface {
	Write(dataset.Record) error
}

// Config configures a Driver.
type Config struct {
	Games       int    // Games to play (0 = 1)
	Mode        string // Move choice (0 = ModeRandom)
	SearchDepth int    // Depth for ModeSearch (0 = 3)
	ScoreDepth  int    // Local scoring depth when no Scorer is set (0 = 2)
	MaxPlies    int    // Ply cap per game (0 = 400)
	Workers     int    // Games played in parallel (0 = 1)
	Seed        uint64 // Random seed (0 = time based)
	StartFEN    string // Initial position (empty = standard start)
	Logger      zerolog.Logger
}

// Driver plays self-play games.
type Driver struct {
	cfg      Config
	log      zerolog.Logger
	start    board.Position
	searcher *search.Searcher
	scorer   reference.Evaluator // nil scores with the local search
	sink     Sink

	nextGame int64

	// Stats
	games      int64
	plies      int64
	checkmates int64
	draws      int64
	capped     int64
}

// Stats summarizes a run.
type Stats struct {
	Games      int64 `json:"games"`
	Plies      int64 `json:"plies"`
	Checkmates int64 `json:"checkmates"`
	Draws      int64 `json:"draws"`
	Capped     int64 `json:"capped"`
}

// GameResult describes one finished game.
type GameResult struct {
	Plies  int
	End    string
	Winner board.Side // Valid when End is EndCheckmate
	Final  board.Position
}

// New creates a Driver. scorer may be nil, in which case positions are
// scored by the local search; it is required for ModeEngine.
func New(cfg Config, scorer reference.Evaluator, sink Sink) (*Driver, error) {
	if cfg.Games == 0 {
		cfg.Games = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRandom
	}
	if cfg.SearchDepth == 0 {
		cfg.SearchDepth = 3
	}
	if cfg.ScoreDepth == 0 {
		cfg.ScoreDepth = 2
	}
	if cfg.MaxPlies == 0 {
		cfg.MaxPlies = 400
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	switch cfg.Mode {
	case ModeRandom, ModeSearch:
	case ModeEngine:
		if scorer == nil {
			return nil, fmt.Errorf("mode %q needs a reference evaluator", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown move mode %q", cfg.Mode)
	}
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}

	start := board.Start()
	if cfg.StartFEN != "" {
		p, err := board.Parse(cfg.StartFEN)
		if err != nil {
			return nil, err
		}
		start = p
	}

	searcher := search.New(search.Config{})
	if err := checkDepth(searcher, cfg.SearchDepth, cfg.ScoreDepth); err != nil {
		return nil, err
	}

	return &Driver{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "selfplay").Logger(),
		start:    start,
		searcher: searcher,
		scorer:   scorer,
		sink:     sink,
	}, nil
}

func checkDepth(s *search.Searcher, depths ...int) error {
	for _, d := range depths {
		if d < 0 || d > s.MaxDepth() {
			return fmt.Errorf("%w: %d", search.ErrDepth, d)
		}
	}
	return nil
}

// GetStats returns the counters so far.
func (d *Driver) GetStats() Stats {
	return Stats{
		Games:      atomic.LoadInt64(&d.games),
		Plies:      atomic.LoadInt64(&d.plies),
		Checkmates: atomic.LoadInt64(&d.checkmates),
		Draws:      atomic.LoadInt64(&d.draws),
		Capped:     atomic.LoadInt64(&d.capped),
	}
}

// Run plays cfg.Games games on cfg.Workers goroutines. The first error
// cancels the remaining games.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	d.log.Info().
		Int("games", d.cfg.Games).
		Str("mode", d.cfg.Mode).
		Int("workers", d.cfg.Workers).
		Int("max_plies", d.cfg.MaxPlies).
		Uint64("seed", d.cfg.Seed).
		Msg("self-play started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error { return d.runWorker(ctx, workerID) })
	}
	err := g.Wait()

	stats := d.GetStats()
	d.log.Info().
		Int64("games", stats.Games).
		Int64("plies", stats.Plies).
		Int64("checkmates", stats.Checkmates).
		Int64("draws", stats.Draws).
		Int64("capped", stats.Capped).
		Msg("self-play stopped")
	return stats, err
}

func (d *Driver) runWorker(ctx context.Context, workerID int) error {
	log := d.log.With().Int("worker_id", workerID).Logger()
	rng := rand.New(rand.NewPCG(d.cfg.Seed, uint64(workerID)))

	for {
		game := int(atomic.AddInt64(&d.nextGame, 1))
		if game > d.cfg.Games {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := d.PlayGame(ctx, rng)
		if err != nil {
			return fmt.Errorf("game %d: %w", game, err)
		}
		log.Info().
			Int("game", game).
			Int("plies", res.Plies).
			Str("end", res.End).
			Str("final", res.Final.FEN()).
			Msg("game finished")
	}
}

// PlayGame plays one game from the configured start, writing a record after
// every move.
func (d *Driver) PlayGame(ctx context.Context, rng *rand.Rand) (GameResult, error) {
	p := d.start
	plies := 0
	for {
		if end, over := gameOver(p); over {
			return d.finish(GameResult{Plies: plies, End: end, Winner: p.SideToMove().Other(), Final: p}), nil
		}
		if plies >= d.cfg.MaxPlies {
			return d.finish(GameResult{Plies: plies, End: EndPlyLimit, Final: p}), nil
		}
		if err := ctx.Err(); err != nil {
			return GameResult{}, err
		}

		m, err := d.choose(ctx, p, rng)
		if err != nil {
			return GameResult{}, err
		}
		p = p.Apply(m)
		plies++
		atomic.AddInt64(&d.plies, 1)

		rec, err := d.score(ctx, p)
		if err != nil {
			return GameResult{}, err
		}
		if err := d.sink.Write(rec); err != nil {
			return GameResult{}, err
		}
	}
}

func (d *Driver) finish(res GameResult) GameResult {
	atomic.AddInt64(&d.games, 1)
	switch res.End {
	case EndCheckmate:
		atomic.AddInt64(&d.checkmates, 1)
	case EndPlyLimit:
		atomic.AddInt64(&d.capped, 1)
	default:
		atomic.AddInt64(&d.draws, 1)
	}
	return res
}

// gameOver reports terminal positions and automatic draws.
func gameOver(p board.Position) (string, bool) {
	switch {
	case p.IsCheckmate():
		return EndCheckmate, true
	case p.IsStalemate():
		return EndStalemate, true
	case p.InsufficientMaterial():
		return EndInsufficient, true
	case p.HalfMoveClock() >= 100:
		return EndFiftyMove, true
	}
	return "", false
}

func (d *Driver) choose(ctx context.Context, p board.Position, rng *rand.Rand) (board.Move, error) {
	switch d.cfg.Mode {
	case ModeSearch:
		r, err := d.searcher.Search(p, d.cfg.SearchDepth)
		if err != nil {
			return board.NoMove, err
		}
		if m, ok := r.BestMove(); ok {
			return m, nil
		}
		return board.NoMove, fmt.Errorf("search found no move in %s", p.FEN())
	case ModeEngine:
		ev, err := d.scorer.Evaluate(ctx, p.FEN())
		if err != nil {
			return board.NoMove, err
		}
		return p.MoveFromUCI(ev.BestMove)
	}

	moves := p.LegalMoves()
	return moves[rng.IntN(len(moves))], nil
}

// score evaluates p for the side to move.
func (d *Driver) score(ctx context.Context, p board.Position) (dataset.Record, error) {
	rec := dataset.Record{FEN: p.EPD()}

	if d.scorer != nil {
		ev, err := d.scorer.Evaluate(ctx, p.FEN())
		if err != nil {
			return rec, err
		}
		rec.Score, rec.Mate = ev.Centipawns, ev.Mate
		return rec, nil
	}

	r, err := d.searcher.Search(p, d.cfg.ScoreDepth)
	if err != nil {
		return rec, err
	}
	ev := reference.FromSearch(r, d.cfg.ScoreDepth)
	rec.Score, rec.Mate = ev.Centipawns, ev.Mate
	return rec, nil
}
