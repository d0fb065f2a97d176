package selfplay

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/dataset"
	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/enginetest"
	"github.com/wspeirs/fishermann/internal/reference"
)

const mateInOneFEN = "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1"

type memSink struct {
	mu   sync.Mutex
	recs []dataset.Record
}

func (s *memSink) Write(r dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
	return nil
}

func TestRandomGames(t *testing.T) {
	sink := &memSink{}
	d, err := New(Config{Games: 3, MaxPlies: 12, ScoreDepth: 1, Seed: 7}, nil, sink)
	if err != nil {
		t.Fatal(err)
	}

	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Games != 3 {
		t.Errorf("games = %d, want 3", stats.Games)
	}
	if int(stats.Plies) != len(sink.recs) {
		t.Errorf("plies = %d but %d records", stats.Plies, len(sink.recs))
	}
	if stats.Plies > 36 {
		t.Errorf("plies = %d, ply cap not honoured", stats.Plies)
	}
	for _, r := range sink.recs {
		if _, err := board.Parse(r.FEN); err != nil {
			t.Errorf("record FEN %q: %v", r.FEN, err)
		}
		if len(strings.Fields(r.FEN)) != 4 {
			t.Errorf("record FEN %q is not an EPD", r.FEN)
		}
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	play := func() string {
		var buf bytes.Buffer
		w, _ := dataset.NewWriter(&buf, false)
		d, err := New(Config{Games: 2, MaxPlies: 10, ScoreDepth: 1, Seed: 42}, nil, w)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		w.Close()
		return buf.String()
	}
	if a, b := play(), play(); a != b {
		t.Errorf("same seed, different games:\n%s\n---\n%s", a, b)
	}
}

func TestSearchModeFindsMate(t *testing.T) {
	sink := &memSink{}
	d, err := New(Config{Mode: ModeSearch, SearchDepth: 2, ScoreDepth: 1, StartFEN: mateInOneFEN}, nil, sink)
	if err != nil {
		t.Fatal(err)
	}

	res, err := d.PlayGame(context.Background(), rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if res.End != EndCheckmate || res.Winner != board.White || res.Plies != 1 {
		t.Errorf("result = %+v", res)
	}
	// The mated side to move is recorded as mated now.
	if len(sink.recs) != 1 || !sink.recs[0].Mate || sink.recs[0].Score != 0 {
		t.Errorf("records = %+v", sink.recs)
	}
	if got := d.GetStats(); got.Checkmates != 1 || got.Games != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestGameOverReasons(t *testing.T) {
	tests := []struct {
		fen  string
		want string
	}{
		{"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", EndCheckmate},
		{"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", EndStalemate},
		{"8/8/4k3/8/8/3NK3/8/8 w - - 0 1", EndInsufficient},
		{"4k3/8/8/8/8/8/4P3/R3K3 w - - 100 80", EndFiftyMove},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			got, over := gameOver(board.MustParse(tc.fen))
			if !over || got != tc.want {
				t.Errorf("gameOver = %q, %v; want %q", got, over, tc.want)
			}
		})
	}
	if _, over := gameOver(board.Start()); over {
		t.Error("start position reported as over")
	}
}

// firstLegal answers every search with the first legal move of the position.
func firstLegal(r enginetest.Request) []string {
	moves := board.MustParse(r.FEN).LegalMoves()
	if len(moves) == 0 {
		return []string{"info depth 0 score mate 0", "bestmove (none)"}
	}
	m := moves[0].UCI()
	return []string{"info depth 1 score cp 17 pv " + m, "bestmove " + m}
}

func TestEngineMode(t *testing.T) {
	fake := enginetest.New()
	fake.Search = firstLegal
	stdout, stdin := fake.Pipes()
	s, err := engine.Attach(context.Background(), stdout, stdin, engine.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	sink := &memSink{}
	d, err := New(Config{Mode: ModeEngine, MaxPlies: 6}, reference.NewStream(s, 1), sink)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Plies != 6 || stats.Capped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	for _, r := range sink.recs {
		if r.Score != 17 {
			t.Errorf("record %+v not scored by the engine", r)
		}
	}
	// Two analyses per ply: one to choose, one to score.
	if n := fake.Count("go"); n != 12 {
		t.Errorf("engine searched %d times, want 12", n)
	}
}

func TestConfigValidation(t *testing.T) {
	sink := &memSink{}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"engine mode without evaluator", Config{Mode: ModeEngine}},
		{"unknown mode", Config{Mode: "coin-flip"}},
		{"search too deep", Config{Mode: ModeSearch, SearchDepth: 99}},
		{"bad start", Config{StartFEN: "nonsense"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, nil, sink); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("nil sink accepted")
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	d, err := New(Config{Games: 100, Workers: 2, ScoreDepth: 1}, nil, &memSink{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run returned %v", err)
	}
}

// hookSink calls hook on every write and returns its error.
type hookSink struct{ hook func() error }

func (s hookSink) Write(dataset.Record) error { return s.hook() }

func TestRunErrorKinds(t *testing.T) {
	errDisk := errors.New("disk full")

	tests := []struct {
		name     string
		sink     func(cancel context.CancelFunc) Sink
		want     error
		canceled bool
	}{
		{
			name: "cancelled mid game",
			sink: func(cancel context.CancelFunc) Sink {
				return hookSink{func() error { cancel(); return nil }}
			},
			want:     context.Canceled,
			canceled: true,
		},
		{
			name: "sink failure",
			sink: func(context.CancelFunc) Sink {
				return hookSink{func() error { return errDisk }}
			},
			want: errDisk,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			d, err := New(Config{Games: 3, ScoreDepth: 1, Seed: 7}, nil, tc.sink(cancel))
			if err != nil {
				t.Fatal(err)
			}
			_, err = d.Run(ctx)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if got := errors.Is(err, context.Canceled); got != tc.canceled {
				t.Errorf("errors.Is(err, context.Canceled) = %v, want %v", got, tc.canceled)
			}
		})
	}
}
