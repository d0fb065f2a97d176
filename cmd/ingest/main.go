package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wspeirs/fishermann/internal/dataset"
	"github.com/wspeirs/fishermann/internal/ingest"
	"github.com/wspeirs/fishermann/internal/logx"
	"github.com/wspeirs/fishermann/internal/reference"
)

func main() {
	defaultRatingMin := 2000
	if envRating := os.Getenv("FISHERMANN_RATING_MIN"); envRating != "" {
		if rating, err := strconv.Atoi(envRating); err == nil {
			defaultRatingMin = rating
		}
	}
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		inputPath = flag.String("pgn", "", "Path to PGN file (supports .zst)")
		watchDir  = flag.String("watch-dir", "", "Directory to watch for PGN files instead of -pgn")
		outPath   = flag.String("out", "", "Dataset file to write (.zst compresses)")
		ratingMin = flag.Int("rating-min", defaultRatingMin, "Rating floor for games")
		skipPlies = flag.Int("skip-plies", 8, "Opening plies not recorded")
		maxPlies  = flag.Int("max-plies", 0, "Last ply recorded per game (0 = whole game)")
		workers   = flag.Int("workers", 1, "Files processed in parallel")

		scorer        = flag.String("scorer", reference.BackendBatch, "position scorer: stream, batch or local")
		scoreDepth    = flag.Int("score-depth", 0, "scoring depth (0 = backend default)")
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		hashMB        = flag.Int("hash", 256, "Stockfish hash MB")
		threads       = flag.Int("threads", 4, "Stockfish threads")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	if (*inputPath == "") == (*watchDir == "") || *outPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: ingest (--pgn <file.pgn[.zst]> | --watch-dir <dir>) --out <dataset[.zst]> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logx.NewLoggerTo(os.Stderr, level)
	logger.Info().
		Str("pgn", *inputPath).
		Str("watch_dir", *watchDir).
		Str("out", *outPath).
		Int("rating_min", *ratingMin).
		Msg("starting ingest")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ref, err := reference.New(ctx, reference.Config{
		Backend:       *scorer,
		StockfishPath: *stockfishPath,
		Depth:         *scoreDepth,
		HashMB:        *hashMB,
		Threads:       *threads,
		Logger:        logger.With().Str("component", "scorer").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("scorer", *scorer).Msg("open scorer")
	}
	defer ref.Close()

	out, err := dataset.Create(*outPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("create dataset")
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error().Err(err).Msg("close dataset")
		}
	}()

	worker, err := ingest.NewWorker(ingest.Config{
		WatchDir:  *watchDir,
		RatingMin: *ratingMin,
		SkipPlies: *skipPlies,
		MaxPlies:  *maxPlies,
		Workers:   *workers,
		Logger:    logger,
	}, ref, out)
	if err != nil {
		logger.Fatal().Err(err).Msg("create ingest worker")
	}

	startTime := time.Now()
	if *inputPath != "" {
		stats, err := worker.ProcessFile(ctx, *inputPath)
		if err != nil {
			logger.Error().Err(err).Msg("ingest stopped")
		}
		logger.Info().
			Int64("games", stats.Games).
			Int64("skipped", stats.Skipped).
			Int64("positions", stats.Positions).
			Dur("elapsed", time.Since(startTime)).
			Msg("ingest complete")
		return
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("ingest worker stopped")
	}
	logger.Info().
		Int64("records", out.Count()).
		Dur("elapsed", time.Since(startTime)).
		Msg("shutdown complete")
}
