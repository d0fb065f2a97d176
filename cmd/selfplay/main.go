package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"github.com/wspeirs/fishermann/internal/dataset"
	"github.com/wspeirs/fishermann/internal/logx"
	"github.com/wspeirs/fishermann/internal/reference"
	"github.com/wspeirs/fishermann/internal/selfplay"
)

// sinks writes every record to each of its writers.
type sinks []*dataset.Writer

func (s sinks) Write(rec dataset.Record) error {
	for _, w := range s {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	os.Exit(run())
}

// run returns the exit code once every deferred close has run.
func run() int {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		// Games
		games    = flag.Int("games", 1, "number of games to play")
		mode     = flag.String("mode", selfplay.ModeRandom, "move choice: random, search or engine")
		depth    = flag.Int("depth", 3, "local search depth for -mode=search")
		maxPlies = flag.Int("max-plies", 400, "ply cap per game")
		workers  = flag.Int("workers", 1, "games played in parallel")
		seed     = flag.Uint64("seed", 0, "random seed (0 = time based)")
		startFEN = flag.String("fen", "", "start position (empty = standard start)")

		// Output
		outPath = flag.String("out", "", "dataset file (.zst compresses); records also go to stdout unless -quiet")
		quiet   = flag.Bool("quiet", false, "do not print records to stdout")

		// Scoring
		scorer        = flag.String("scorer", "local", "position scorer: local, stream or batch")
		scoreDepth    = flag.Int("score-depth", 0, "scoring depth (0 = backend default)")
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		hashMB        = flag.Int("hash", 64, "Stockfish hash MB")
		threads       = flag.Int("threads", 1, "Stockfish threads")

		// Diagnostics
		logLevel   = flag.String("log-level", "info", "log level")
		profileDir = flag.String("profile", "", "write a CPU profile to this directory")
	)
	flag.Parse()

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := logx.NewLoggerTo(os.Stderr, level)

	if *profileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.NoShutdownHook).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out sinks
	if !*quiet {
		w, err := dataset.NewWriter(os.Stdout, false)
		if err != nil {
			logger.Error().Err(err).Msg("stdout writer")
			return 1
		}
		defer w.Close()
		out = append(out, w)
	}
	if *outPath != "" {
		w, err := dataset.Create(*outPath)
		if err != nil {
			logger.Error().Err(err).Str("path", *outPath).Msg("create dataset")
			return 1
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error().Err(err).Msg("close dataset")
			}
			logger.Info().Int64("records", w.Count()).Str("path", *outPath).Msg("dataset written")
		}()
		out = append(out, w)
	}
	if len(out) == 0 {
		logger.Error().Msg("nothing to write: pass -out or drop -quiet")
		return 2
	}

	ref, err := reference.New(ctx, reference.Config{
		Backend:       *scorer,
		StockfishPath: *stockfishPath,
		Depth:         *scoreDepth,
		HashMB:        *hashMB,
		Threads:       *threads,
		Logger:        logger.With().Str("component", "scorer").Logger(),
	})
	if err != nil {
		logger.Error().Err(err).Str("scorer", *scorer).Msg("open scorer")
		return 1
	}
	defer ref.Close()

	driver, err := selfplay.New(selfplay.Config{
		Games:       *games,
		Mode:        *mode,
		SearchDepth: *depth,
		MaxPlies:    *maxPlies,
		Workers:     *workers,
		Seed:        *seed,
		StartFEN:    *startFEN,
		Logger:      logger.With().Str("component", "selfplay").Logger(),
	}, ref, out)
	if err != nil {
		logger.Error().Err(err).Msg("create driver")
		return 2
	}

	start := time.Now()
	stats, err := driver.Run(ctx)
	logger.Info().
		Int64("games", stats.Games).
		Int64("plies", stats.Plies).
		Int64("checkmates", stats.Checkmates).
		Int64("draws", stats.Draws).
		Int64("capped", stats.Capped).
		Dur("elapsed", time.Since(start)).
		Msg("self-play done")

	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		logger.Warn().Msg("self-play interrupted")
		return 130
	default:
		logger.Error().Err(err).Msg("self-play failed")
		return 1
	}
}
