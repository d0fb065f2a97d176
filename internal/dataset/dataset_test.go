package dataset

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
)

var records = []Record{
	{Score: 31, FEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -"},
	{Score: -120, FEN: "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq -"},
	{Score: 3, Mate: true, FEN: "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - -"},
	{Score: -1, Mate: true, FEN: "6k1/5ppp/8/8/8/8/5PPP/R5K1 b - -"},
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Record
		wantErr bool
	}{
		{line: "31: 8/8/8/8/8/8/8/K6k w - -", want: Record{Score: 31, FEN: "8/8/8/8/8/8/8/K6k w - -"}},
		{line: "-7: 8/8/8/8/8/8/8/K6k b - -", want: Record{Score: -7, FEN: "8/8/8/8/8/8/8/K6k b - -"}},
		{line: "#-2: 8/8/8/8/8/8/8/K6k b - -", want: Record{Score: -2, Mate: true, FEN: "8/8/8/8/8/8/8/K6k b - -"}},
		{line: "8/8/8/8/8/8/8/K6k w - -", wantErr: true},
		{line: "abc: 8/8/8/8/8/8/8/K6k w - -", wantErr: true},
		{line: "12: ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got, err := ParseLine(tc.line)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records[:3] {
		if err := w.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	want := "31: rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -\n" +
		"-120: rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq -\n" +
		"#3: 6k1/5ppp/8/8/8/8/5PPP/R5K1 w - -\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
	if w.Count() != 3 {
		t.Errorf("Count() = %d", w.Count())
	}
}

func TestFiles(t *testing.T) {
	for _, name := range []string{"positions.txt", "positions.txt.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range records {
				if err := w.Write(r); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			got, err := ReadAll(path)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, records) {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Write(records[j%len(records)])
			}
		}()
	}
	wg.Wait()
	w.Close()

	r, _ := NewReader(&buf, false)
	n := 0
	for r.Next() {
		n++
	}
	if r.Err() != nil || n != 800 {
		t.Errorf("read %d records, err %v", n, r.Err())
	}
}

func TestReaderReportsLine(t *testing.T) {
	r, _ := NewReader(strings.NewReader("1: a b c d\n\nbroken\n"), false)
	for r.Next() {
	}
	if r.Err() == nil || !strings.Contains(r.Err().Error(), "line 3") {
		t.Errorf("Err() = %v, want a line 3 error", r.Err())
	}
}

func TestRejectsMultilineFEN(t *testing.T) {
	w, _ := NewWriter(&bytes.Buffer{}, false)
	if err := w.Write(Record{FEN: "a\nb"}); err == nil {
		t.Error("line break accepted")
	}
}
