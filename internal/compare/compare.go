// Package compare replays PGN games and scores every position with both the
// local search and a reference evaluator, writing one CSV row per position.
package compare

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/reference"
	"github.com/wspeirs/fishermann/internal/search"
)

// Header is the CSV header row.
var Header = []string{"game", "ply", "fen", "local_score", "local_best", "ref_score", "ref_mate", "ref_best", "agree"}

// Config configures a comparison run.
type Config struct {
	Depth    int // Local search depth (0 = 3)
	MaxGames int // Games to replay (0 = all)
	MaxPlies int // Positions per game (0 = all)
	Logger   zerolog.Logger
}

// Summary aggregates a run.
type Summary struct {
	Games     int
	Positions int
	Agreed    int     // Positions where both picked the same move
	MeanDiff  float64 // Mean |local - reference| over positions without mate scores
	compared  int
	totalDiff float64
}

// Run replays the games in path (.pgn or .pgn.zst) and writes rows to w.
func Run(ctx context.Context, path string, ref reference.Evaluator, w *csv.Writer, cfg Config) (Summary, error) {
	if cfg.Depth == 0 {
		cfg.Depth = 3
	}
	log := cfg.Logger.With().Str("component", "compare").Str("file", filepath.Base(path)).Logger()
	searcher := search.New(search.Config{})

	if err := w.Write(Header); err != nil {
		return Summary{}, fmt.Errorf("write header: %w", err)
	}

	var sum Summary
	lastLog := time.Now()

	parser := pgn.Games(path)

	var runErr error
gameLoop:
	for game := range parser.Games {
		if err := ctx.Err(); err != nil {
			runErr = err
		}
		if runErr != nil || (cfg.MaxGames > 0 && sum.Games >= cfg.MaxGames) {
			parser.Stop()
			break gameLoop
		}
		sum.Games++

		pos := pgn.NewStartingPosition()
		played := 0
	moveLoop:
		for ply, mv := range game.Moves {
			if cfg.MaxPlies > 0 && ply >= cfg.MaxPlies {
				break
			}
			if err := compareOne(ctx, searcher, cfg.Depth, ref, w, sum.Games, ply, pos.ToFEN(), &sum); err != nil {
				runErr = err
				parser.Stop()
				break gameLoop
			}
			if err := pgn.ApplyMove(pos, mv); err != nil {
				log.Warn().Err(err).Int("game", sum.Games).Int("ply", ply).Msg("illegal move in game, skipping rest")
				break moveLoop
			}
			played++
		}

		// Position after the last move; compareOne skips it when the game ended in mate or stalemate.
		if played == len(game.Moves) && (cfg.MaxPlies == 0 || played < cfg.MaxPlies) {
			if err := compareOne(ctx, searcher, cfg.Depth, ref, w, sum.Games, played, pos.ToFEN(), &sum); err != nil {
				runErr = err
				parser.Stop()
				break gameLoop
			}
		}

		if time.Since(lastLog) > 10*time.Second {
			log.Info().Int("games", sum.Games).Int("positions", sum.Positions).Int("agreed", sum.Agreed).Msg("compare progress")
			lastLog = time.Now()
		}
	}
	if runErr != nil {
		return sum, runErr
	}
	if err := parser.Err(); err != nil {
		return sum, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return sum, fmt.Errorf("csv writer: %w", err)
	}
	if sum.compared > 0 {
		sum.MeanDiff = sum.totalDiff / float64(sum.compared)
	}

	log.Info().
		Int("games", sum.Games).
		Int("positions", sum.Positions).
		Int("agreed", sum.Agreed).
		Float64("mean_diff", sum.MeanDiff).
		Msg("compare complete")
	return sum, nil
}

func compareOne(ctx context.Context, s *search.Searcher, depth int, ref reference.Evaluator, w *csv.Writer, game, ply int, fen string, sum *Summary) error {
	p, err := board.Parse(fen)
	if err != nil {
		return err
	}
	if p.IsTerminal() {
		return nil
	}

	local, err := s.Search(p, depth)
	if err != nil {
		return err
	}
	ev, err := ref.Evaluate(ctx, fen)
	if err != nil {
		return err
	}

	localBest := ""
	if m, ok := local.BestMove(); ok {
		localBest = m.UCI()
	}
	agree := localBest != "" && localBest == ev.BestMove

	sum.Positions++
	if agree {
		sum.Agreed++
	}
	if !local.Score.IsMate() && !ev.Mate {
		diff := float64(int(local.Score) - ev.Centipawns)
		if diff < 0 {
			diff = -diff
		}
		sum.totalDiff += diff
		sum.compared++
	}

	return w.Write([]string{
		strconv.Itoa(game),
		strconv.Itoa(ply),
		fen,
		local.Score.String(),
		localBest,
		strconv.Itoa(ev.Centipawns),
		strconv.FormatBool(ev.Mate),
		ev.BestMove,
		strconv.FormatBool(agree),
	})
}
