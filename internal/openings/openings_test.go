package openings_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/openings"
)

const table = "eco\tname\tpgn\n" +
	"B00\tKing's Pawn Game\t1. e4\n" +
	"C50\tItalian Game\t1. e4 e5 2. Nf3 Nc6 3. Bc4\n" +
	"A80\tDutch Defense\t1. d4 f5\n" +
	"X99\tBroken Line\t1. e4 e4\n"

func play(t *testing.T, moves ...string) board.Position {
	t.Helper()
	p := board.Start()
	for _, uci := range moves {
		m, err := p.MoveFromUCI(uci)
		if err != nil {
			t.Fatal(err)
		}
		p = p.Apply(m)
	}
	return p
}

func TestLoadAndLookup(t *testing.T) {
	db := openings.NewDatabase()
	if err := db.Load(strings.NewReader(table)); err != nil {
		t.Fatal(err)
	}
	if db.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (broken line skipped)", db.Count())
	}

	tests := []struct {
		name  string
		moves []string
		eco   string
	}{
		{"king's pawn", []string{"e2e4"}, "B00"},
		{"italian", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4"}, "C50"},
		{"dutch", []string{"d2d4", "f7f5"}, "A80"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := db.Lookup(play(t, tc.moves...))
			if o == nil {
				t.Fatal("opening not found")
			}
			if o.ECO != tc.eco {
				t.Errorf("ECO = %s, want %s", o.ECO, tc.eco)
			}
		})
	}

	if o := db.Lookup(board.Start()); o != nil {
		t.Errorf("start position named %+v", o)
	}
	if o := db.LookupFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"); o == nil || o.ECO != "B00" {
		t.Errorf("LookupFEN(1. e4) = %+v", o)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.tsv"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	db := openings.NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	if db.Count() != 3 {
		t.Errorf("Count() = %d", db.Count())
	}

	if err := openings.NewDatabase().LoadDir(t.TempDir()); err == nil {
		t.Error("empty directory accepted")
	}
}
