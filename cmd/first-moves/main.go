package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/explore"
	"github.com/wspeirs/fishermann/internal/logx"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		depth         = flag.Int("depth", 10, "analysis depth")
		lines         = flag.Int("lines", 3, "MultiPV lines per position")
		second        = flag.Bool("second", false, "also expand every white second move")
		hashMB        = flag.Int("hash", 512, "Stockfish hash MB")
		threads       = flag.Int("threads", 4, "Stockfish threads")
		logLevel      = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logx.NewLoggerTo(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := engine.Start(ctx, engine.Config{
		Path:    *stockfishPath,
		Threads: *threads,
		Options: []engine.Option{{Name: "Hash", Value: fmt.Sprint(*hashMB)}},
		Logger:  logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", *stockfishPath).Msg("start engine")
	}
	defer session.Close()

	logger.Info().Str("engine", session.ID().Name).Int("depth", *depth).Msg("engine ready")

	report, err := explore.Run(ctx, session, explore.Config{
		Depth:       *depth,
		Lines:       *lines,
		SecondMoves: *second,
		Logger:      logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("survey stopped")
	}
	if err := report.Write(os.Stdout); err != nil {
		logger.Error().Err(err).Msg("write report")
	}
}
