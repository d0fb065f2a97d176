package compare

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/reference"
	"github.com/wspeirs/fishermann/internal/search"
)

const games = `[Event "Casual"]
[White "A"]
[Black "B"]
[Result "1-0"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0

[Event "Casual"]
[White "C"]
[Black "D"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

const unfinished = `[Event "Casual"]
[White "E"]
[Black "F"]
[Result "*"]

1. e4 e5 *
`

func writePGN(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.pgn")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunAgainstItself(t *testing.T) {
	path := writePGN(t, games)
	ref := reference.NewLocal(search.New(search.Config{}), 2)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	sum, err := Run(context.Background(), path, ref, w, Config{Depth: 2})
	if err != nil {
		t.Fatal(err)
	}

	// Seven and four moves; both games end in mate, so the final
	// positions are skipped.
	if sum.Games != 2 || sum.Positions != 11 {
		t.Errorf("summary = %+v, want 2 games and 11 positions", sum)
	}
	if sum.Agreed != sum.Positions {
		t.Errorf("identical evaluators disagreed: %+v", sum)
	}
	if sum.MeanDiff != 0 {
		t.Errorf("mean diff = %v, want 0", sum.MeanDiff)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 12 {
		t.Fatalf("got %d rows, want header + 11", len(rows))
	}
	for i, h := range Header {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	if p, err := board.Parse(rows[1][2]); err != nil || p.EPD() != board.Start().EPD() {
		t.Errorf("first FEN = %q, want the start position", rows[1][2])
	}
}

func TestRunLimits(t *testing.T) {
	path := writePGN(t, games)
	ref := reference.NewLocal(search.New(search.Config{}), 1)

	var buf bytes.Buffer
	sum, err := Run(context.Background(), path, ref, csv.NewWriter(&buf), Config{Depth: 1, MaxGames: 1, MaxPlies: 3})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Games != 1 || sum.Positions != 3 {
		t.Errorf("summary = %+v, want 1 game and 3 positions", sum)
	}
}

func TestRunComparesFinalPosition(t *testing.T) {
	tests := []struct {
		name      string
		maxPlies  int
		positions int
		lastFEN   string
	}{
		{"whole game", 0, 3, "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq"},
		{"ply cap stops before the end", 2, 2, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq"},
		{"ply cap past the end", 5, 3, "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePGN(t, unfinished)
			ref := reference.NewLocal(search.New(search.Config{}), 1)

			var buf bytes.Buffer
			w := csv.NewWriter(&buf)
			sum, err := Run(context.Background(), path, ref, w, Config{Depth: 1, MaxPlies: tc.maxPlies})
			if err != nil {
				t.Fatal(err)
			}
			if sum.Positions != tc.positions {
				t.Fatalf("positions = %d, want %d", sum.Positions, tc.positions)
			}

			rows, err := csv.NewReader(&buf).ReadAll()
			if err != nil {
				t.Fatal(err)
			}
			last := rows[len(rows)-1]
			p, err := board.Parse(last[2])
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(p.EPD(), tc.lastFEN) {
				t.Errorf("last FEN = %q, want %q", p.EPD(), tc.lastFEN)
			}
		})
	}
}
