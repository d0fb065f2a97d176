// Package ingest turns PGN game files into scored dataset records: every
// position of every game that passes the rating filter is scored by a
// reference evaluator, once per run.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/dataset"
	"github.com/wspeirs/fishermann/internal/reference"
)

// Sink receives scored positions. *dataset.Writer implements it.
type Sink interface {
	Write(dataset.Record) error
}

// Config configures the ingest worker.
type Config struct {
	WatchDir     string         // Directory to watch for PGN files
	ProcessedDir string         // Directory to move processed files to
	RatingMin    int            // Minimum rating of both players (0 = no filter)
	SkipPlies    int            // Opening plies not recorded
	MaxPlies     int            // Last ply recorded per game (0 = whole game)
	Workers      int            // Files processed in parallel (0 = 1)
	PollInterval time.Duration  // How often to check for new files
	Logger       zerolog.Logger // Logger
}

// FileStats counts the work done on one file.
type FileStats struct {
	Games     int64
	Skipped   int64 // Games below the rating floor
	Positions int64 // Records written
	Repeats   int64 // Positions already scored earlier in the run
}

// Worker watches a folder and labels PGN files.
type Worker struct {
	cfg    Config
	scorer reference.Evaluator
	sink   Sink
	log    zerolog.Logger

	mu   sync.Mutex
	seen map[pgn.PackedPosition]struct{}
}

// NewWorker creates a new ingest worker. WatchDir is only needed for Run and
// ProcessNewFiles; ProcessFile works without it.
func NewWorker(cfg Config, scorer reference.Evaluator, sink Sink) (*Worker, error) {
	if scorer == nil || sink == nil {
		return nil, fmt.Errorf("scorer and sink required")
	}
	if cfg.ProcessedDir == "" && cfg.WatchDir != "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	// Ensure directories exist
	if cfg.WatchDir != "" {
		if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
			return nil, err
		}
	}

	return &Worker{
		cfg:    cfg,
		scorer: scorer,
		sink:   sink,
		log:    cfg.Logger.With().Str("component", "ingest").Logger(),
		seen:   make(map[pgn.PackedPosition]struct{}),
	}, nil
}

// Run processes the watch directory every PollInterval until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Int("rating_min", w.cfg.RatingMin).
		Msg("ingest worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessNewFiles(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn().Err(err).Msg("process files failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessNewFiles labels every PGN file in the watch directory, Workers at a
// time, and moves the finished ones to the processed directory. It returns
// the number of files processed.
func (w *Worker) ProcessNewFiles(ctx context.Context) (int, error) {
	if w.cfg.WatchDir == "" {
		return 0, fmt.Errorf("no watch dir configured")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return 0, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return 0, nil
	}

	// Sort by name to process in order
	sort.Strings(files)
	w.log.Info().Int("files", len(files)).Int("workers", w.cfg.Workers).Msg("found PGN files to process")

	type fileResult struct {
		name string
		err  error
	}

	fileChan := make(chan string, len(files))
	resultChan := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for name := range fileChan {
				if err := ctx.Err(); err != nil {
					resultChan <- fileResult{name: name, err: err}
					continue
				}
				_, err := w.ProcessFile(ctx, filepath.Join(w.cfg.WatchDir, name))
				resultChan <- fileResult{name: name, err: err}
			}
		}(i)
	}

	for _, name := range files {
		fileChan <- name
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var processed, failed int
	for result := range resultChan {
		if result.err != nil {
			w.log.Error().Err(result.err).Str("file", result.name).Msg("ingest failed")
			failed++
			continue
		}

		srcPath := filepath.Join(w.cfg.WatchDir, result.name)
		destPath := filepath.Join(w.cfg.ProcessedDir, result.name)
		if err := os.Rename(srcPath, destPath); err != nil {
			w.log.Warn().Err(err).Str("file", result.name).Msg("move to processed failed")
		}
		processed++
	}

	w.log.Info().Int("processed", processed).Int("failed", failed).Msg("batch complete")
	if failed > 0 {
		return processed, fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return processed, nil
}

// ProcessFile labels a single PGN file (.pgn or .pgn.zst).
func (w *Worker) ProcessFile(ctx context.Context, path string) (FileStats, error) {
	log := w.log.With().Str("file", filepath.Base(path)).Logger()
	log.Info().Msg("starting file ingest")

	startTime := time.Now()
	lastLog := startTime
	var stats FileStats

	parser := pgn.Games(path)

	var runErr error
gameLoop:
	for game := range parser.Games {
		if err := ctx.Err(); err != nil {
			runErr = err
			parser.Stop()
			break gameLoop
		}

		whiteRating := parseRating(game.Tags["WhiteElo"])
		blackRating := parseRating(game.Tags["BlackElo"])
		if w.cfg.RatingMin > 0 && (whiteRating < w.cfg.RatingMin || blackRating < w.cfg.RatingMin) {
			stats.Skipped++
			continue
		}

		if err := w.processGame(ctx, game, &stats); err != nil {
			runErr = err
			parser.Stop()
			break gameLoop
		}
		stats.Games++

		if time.Since(lastLog) > 10*time.Second {
			log.Info().
				Int64("games", stats.Games).
				Int64("skipped", stats.Skipped).
				Int64("positions", stats.Positions).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}

	if runErr != nil {
		return stats, runErr
	}
	if err := parser.Err(); err != nil {
		return stats, err
	}

	log.Info().
		Int64("games", stats.Games).
		Int64("skipped", stats.Skipped).
		Int64("positions", stats.Positions).
		Int64("repeats", stats.Repeats).
		Dur("elapsed", time.Since(startTime)).
		Msg("file ingest complete")
	return stats, nil
}

// processGame replays game and scores the positions before each move.
func (w *Worker) processGame(ctx context.Context, game *pgn.Game, stats *FileStats) error {
	pos := pgn.NewStartingPosition()
	for ply, mv := range game.Moves {
		if w.cfg.MaxPlies > 0 && ply >= w.cfg.MaxPlies {
			break
		}
		if ply >= w.cfg.SkipPlies {
			if w.markSeen(pos.Pack()) {
				if err := w.record(ctx, pos.ToFEN()); err != nil {
					return err
				}
				stats.Positions++
			} else {
				stats.Repeats++
			}
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			w.log.Debug().Err(err).Int("ply", ply).Msg("illegal move in game, skipping rest")
			break
		}
	}
	return nil
}

// markSeen reports whether key is new to this run.
func (w *Worker) markSeen(key pgn.PackedPosition) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	return true
}

func (w *Worker) record(ctx context.Context, fen string) error {
	ev, err := w.scorer.Evaluate(ctx, fen)
	if err != nil {
		return fmt.Errorf("score %s: %w", fen, err)
	}
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return w.sink.Write(dataset.Record{
		Score: ev.Centipawns,
		Mate:  ev.Mate,
		FEN:   strings.Join(fields, " "),
	})
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		// Check for .pgn.zst
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
