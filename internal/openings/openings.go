// Package openings names positions using ECO (Encyclopedia of Chess Openings)
// tables in the lichess chess-openings TSV format: eco, name, pgn.
package openings

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/wspeirs/fishermann/internal/board"
)

// Opening is an ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database holds openings indexed by position.
type Database struct {
	byPosition map[string]Opening
	count      int
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{byPosition: make(map[string]Opening)}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.Load(f)
}

// Load reads TSV rows. Rows whose moves do not parse are skipped.
func (db *Database) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Skip header
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		pos := pgn.NewStartingPosition()
		if err := applyMoves(pos, parts[2]); err != nil {
			continue
		}
		key, err := fenKey(pos.ToFEN())
		if err != nil {
			continue
		}

		db.byPosition[key] = Opening{ECO: parts[0], Name: parts[1]}
		db.count++
	}

	return scanner.Err()
}

// applyMoves parses and applies PGN moves like "1. e4 e5 2. Nf3 Nc6"
func applyMoves(pos *pgn.GameState, pgnMoves string) error {
	cleaned := moveNumberRegex.ReplaceAllString(pgnMoves, "")

	for _, san := range strings.Fields(cleaned) {
		// Skip annotations
		if san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimSuffix(san, "+")
		san = strings.TrimSuffix(san, "#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return fmt.Errorf("parse %q: %w", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return fmt.Errorf("apply %q: %w", san, err)
		}
	}
	return nil
}

// fenKey reduces a FEN to placement, side to move and castling rights. The
// en passant field is dropped because FEN writers disagree on whether to
// print an uncapturable en passant square.
func fenKey(fen string) (string, error) {
	p, err := board.Parse(fen)
	if err != nil {
		return "", err
	}
	return positionKey(p), nil
}

func positionKey(p board.Position) string {
	fields := strings.Fields(p.FEN())
	return strings.Join(fields[:3], " ")
}

// Lookup returns the opening for a position, or nil if not found.
func (db *Database) Lookup(p board.Position) *Opening {
	if o, ok := db.byPosition[positionKey(p)]; ok {
		return &o
	}
	return nil
}

// LookupFEN is Lookup for a FEN string.
func (db *Database) LookupFEN(fen string) *Opening {
	key, err := fenKey(fen)
	if err != nil {
		return nil
	}
	if o, ok := db.byPosition[key]; ok {
		return &o
	}
	return nil
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}
