package dataset

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
)

func TestExportCSV(t *testing.T) {
	src := "35: rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3\n" +
		"#2: 6k1/5ppp/8/8/8/8/5PPP/R5K1 w - -\n"
	r, err := NewReader(strings.NewReader(src), false)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	n, err := ExportCSV(r, w)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("exported %d rows, want 2", n)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		CSVHeader,
		{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3", "black", "35", "false", "-35"},
		{"6k1/5ppp/8/8/8/8/5PPP/R5K1 w - -", "white", "2", "true", "2"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestImportCSV(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		imported int
		skipped  int
		wantErr  bool
	}{
		{
			name: "exported format",
			in: "fen,side,score,mate,white_score\n" +
				"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1,white,12,false,12\n" +
				"6k1/5ppp/8/8/8/8/5PPP/R5K1 w - -,white,1,true,1\n",
			imported: 2,
		},
		{
			name:     "reordered without mate",
			in:       "score,fen\n-40,rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -\n",
			imported: 1,
		},
		{
			name:     "bad rows skipped",
			in:       "fen,score\nnot a fen,10\nrnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -,x\nshort\n",
			imported: 0,
			skipped:  3,
		},
		{
			name:    "missing columns",
			in:      "position,cp\nabc,1\n",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, false)
			if err != nil {
				t.Fatal(err)
			}
			stats, err := ImportCSV(csv.NewReader(strings.NewReader(tc.in)), w)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			if stats.Imported != tc.imported || stats.Skipped != tc.skipped {
				t.Errorf("stats = %+v, want imported %d skipped %d", stats, tc.imported, tc.skipped)
			}

			r, err := NewReader(&buf, false)
			if err != nil {
				t.Fatal(err)
			}
			n := 0
			for r.Next() {
				rec := r.Record()
				if strings.Count(rec.FEN, " ") != 3 {
					t.Errorf("record FEN %q is not an EPD", rec.FEN)
				}
				n++
			}
			if err := r.Err(); err != nil {
				t.Fatal(err)
			}
			if n != tc.imported {
				t.Errorf("read back %d records, want %d", n, tc.imported)
			}
		})
	}
}
