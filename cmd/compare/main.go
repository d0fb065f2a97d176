package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wspeirs/fishermann/internal/compare"
	"github.com/wspeirs/fishermann/internal/logx"
	"github.com/wspeirs/fishermann/internal/reference"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		inputPath  = flag.String("pgn", "", "Path to PGN file (supports .zst)")
		outputPath = flag.String("output", "compare.csv", "Output CSV file (- for stdout)")
		depth      = flag.Int("depth", 3, "local search depth")
		maxGames   = flag.Int("max-games", 0, "Maximum games to replay (0 = unlimited)")
		maxPlies   = flag.Int("max-plies", 0, "Maximum positions per game (0 = all)")

		backend       = flag.String("reference", reference.BackendStream, "reference backend: stream, batch or local")
		refDepth      = flag.Int("ref-depth", 0, "reference depth (0 = backend default)")
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		hashMB        = flag.Int("hash", 256, "Stockfish hash MB")
		threads       = flag.Int("threads", 4, "Stockfish threads")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: compare -pgn games.pgn[.zst] [-output compare.csv]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logx.NewLoggerTo(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ref, err := reference.New(ctx, reference.Config{
		Backend:       *backend,
		StockfishPath: *stockfishPath,
		Depth:         *refDepth,
		HashMB:        *hashMB,
		Threads:       *threads,
		Logger:        logger.With().Str("component", "reference").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("reference", *backend).Msg("open reference")
	}
	defer ref.Close()

	out := os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("create output file")
		}
		defer f.Close()
		out = f
	}

	sum, err := compare.Run(ctx, *inputPath, ref, csv.NewWriter(out), compare.Config{
		Depth:    *depth,
		MaxGames: *maxGames,
		MaxPlies: *maxPlies,
		Logger:   logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("compare stopped")
	}

	logger.Info().
		Int("games", sum.Games).
		Int("positions", sum.Positions).
		Int("agreed", sum.Agreed).
		Float64("mean_diff", sum.MeanDiff).
		Str("output", *outputPath).
		Msg("done")
}
