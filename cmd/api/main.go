package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/httpapi"
	"github.com/wspeirs/fishermann/internal/logx"
	"github.com/wspeirs/fishermann/internal/openings"
	"github.com/wspeirs/fishermann/internal/search"
)

func main() {
	var (
		// Server
		addr = flag.String("addr", ":8007", "listen address")

		// Local search
		maxDepth   = flag.Int("max-depth", search.DefaultMaxDepth, "deepest local search a request may ask for")
		exhaustive = flag.Bool("exhaustive", false, "disable alpha-beta pruning (slow, for cross-checking)")

		// Stockfish
		stockfishPath = flag.String("stockfish", "", "path to Stockfish executable (empty = no engine analysis)")
		engineThreads = flag.Int("engine-threads", 4, "Stockfish threads")
		engineHash    = flag.Int("engine-hash", 256, "Stockfish hash MB")
		multiPV       = flag.Int("multipv", 1, "Stockfish MultiPV lines")

		// ECO settings
		ecoDir = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" && *stockfishPath == "" {
		*stockfishPath = envPath
	}

	level, err := logx.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logx.NewLoggerTo(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the engine (before HTTP server so we can pass it to the router)
	var session *engine.Session
	if *stockfishPath != "" {
		session, err = engine.Start(ctx, engine.Config{
			Path:    *stockfishPath,
			Threads: *engineThreads,
			Options: []engine.Option{
				{Name: "Hash", Value: fmt.Sprint(*engineHash)},
				{Name: "MultiPV", Value: fmt.Sprint(*multiPV)},
			},
			Logger: logger.With().Str("component", "engine").Logger(),
		})
		if err != nil {
			logger.Fatal().Err(err).Str("path", *stockfishPath).Msg("start engine")
		}
		defer session.Close()
	}

	// Load ECO opening database
	var ecoDB *openings.Database
	if *ecoDir != "" {
		ecoDB = openings.NewDatabase()
		if err := ecoDB.LoadDir(*ecoDir); err != nil {
			logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
			ecoDB = nil
		} else {
			logger.Info().Int("openings", ecoDB.Count()).Msg("ECO database loaded")
		}
	}

	searcher := search.New(search.Config{MaxDepth: *maxDepth, DisablePruning: *exhaustive})

	// Start HTTP server
	srv := &http.Server{
		Addr:        *addr,
		Handler:     httpapi.NewRouter(logger, searcher, session, ecoDB),
		ReadTimeout: 30 * time.Second,
		// Analysis streams stay open for the whole engine search
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}
