package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/enginetest"
	"github.com/wspeirs/fishermann/internal/openings"
	"github.com/wspeirs/fishermann/internal/search"
)

const mateInOneFEN = "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1"

func newTestRouter(t *testing.T, withEngine bool, db *openings.Database) (http.Handler, *enginetest.Engine) {
	t.Helper()
	var (
		session *engine.Session
		fake    *enginetest.Engine
	)
	if withEngine {
		fake = enginetest.New()
		stdout, stdin := fake.Pipes()
		var err error
		session, err = engine.Attach(context.Background(), stdout, stdin, engine.Config{})
		if err != nil {
			t.Fatalf("Attach: %v", err)
		}
		t.Cleanup(func() { session.Close() })
	}
	return NewRouter(zerolog.Nop(), search.New(search.Config{MaxDepth: 4}), session, db), fake
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, true, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Errorf("%s: %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestPosition(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)

	tests := []struct {
		name   string
		target string
		code   int
		moves  int
		side   string
		status string
		path   int
	}{
		{"start", "/v1/position", http.StatusOK, 20, "white", "", 0},
		{"moves from start", "/v1/position?moves=e2e4,e7e5", http.StatusOK, 29, "white", "", 2},
		{"checkmate", "/v1/position?fen=" + url.QueryEscape("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"), http.StatusOK, 0, "white", "checkmate", 0},
		{"bad fen", "/v1/position?fen=nonsense", http.StatusBadRequest, 0, "", "", 0},
		{"illegal move", "/v1/position?moves=e2e5", http.StatusBadRequest, 0, "", "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, tc.target)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.code, rec.Body.String())
			}
			if tc.code != http.StatusOK {
				return
			}
			resp := decode[PositionResponse](t, rec)
			if len(resp.Moves) != tc.moves {
				t.Errorf("moves = %d, want %d", len(resp.Moves), tc.moves)
			}
			if resp.SideToMove != tc.side {
				t.Errorf("side = %s, want %s", resp.SideToMove, tc.side)
			}
			if resp.Status != tc.status {
				t.Errorf("status = %q, want %q", resp.Status, tc.status)
			}
			if len(resp.Path) != tc.path {
				t.Errorf("path = %d, want %d", len(resp.Path), tc.path)
			}
		})
	}
}

func TestPositionSAN(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)
	resp := decode[PositionResponse](t, get(t, h, "/v1/position"))
	found := false
	for _, m := range resp.Moves {
		if m.UCI == "g1f3" {
			found = true
			if m.SAN != "Nf3" {
				t.Errorf("g1f3 SAN = %s, want Nf3", m.SAN)
			}
		}
	}
	if !found {
		t.Error("g1f3 missing from start position moves")
	}
}

func TestSearch(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)

	rec := get(t, h, "/v1/search?depth=1&fen="+url.QueryEscape(mateInOneFEN))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[SearchResponse](t, rec)
	if resp.BestMove != "a1a8" {
		t.Errorf("best move = %s, want a1a8", resp.BestMove)
	}
	if resp.Score.Mate != 1 {
		t.Errorf("mate = %d, want 1", resp.Score.Mate)
	}
	if len(resp.PVSAN) != 1 || resp.PVSAN[0] != "Ra8#" {
		t.Errorf("pv_san = %v, want [Ra8#]", resp.PVSAN)
	}

	for _, target := range []string{"/v1/search?depth=9", "/v1/search?depth=-1", "/v1/search?depth=x"} {
		if rec := get(t, h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchMoves(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)

	rec := get(t, h, "/v1/search/moves?depth=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[RootMovesResponse](t, rec)
	if len(resp.Moves) != 20 {
		t.Fatalf("moves = %d, want 20", len(resp.Moves))
	}
	for i := 1; i < len(resp.Moves); i++ {
		if resp.Moves[i].Score.CP > resp.Moves[i-1].Score.CP {
			t.Errorf("moves not sorted best first at %d", i)
		}
	}
	for _, m := range resp.Moves {
		if len(m.PV) == 0 || m.PV[0] != m.UCI {
			t.Errorf("%s: pv %v does not start with the root move", m.UCI, m.PV)
		}
	}
}

func TestAnalyze(t *testing.T) {
	h, fake := newTestRouter(t, true, nil)

	rec := get(t, h, "/v1/analyze?depth=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %s", ct)
	}

	var events []AnalysisEvent
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		var ev AnalysisEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4: %s", len(events), rec.Body.String())
	}
	for i, ev := range events[:3] {
		if ev.Type != "info" || ev.Depth != i+1 {
			t.Errorf("event %d = %+v", i, ev)
		}
		if ev.CP == nil || *ev.CP != 10*(i+1) {
			t.Errorf("event %d cp = %v, want %d", i, ev.CP, 10*(i+1))
		}
	}
	if last := events[3]; last.Type != "bestmove" || last.Move != "e2e4" || last.Ponder != "e7e5" {
		t.Errorf("last event = %+v", last)
	}
	if n := fake.Count("stop"); n != 0 {
		t.Errorf("stop sent %d times for a completed analysis", n)
	}

	if rec := get(t, h, "/v1/analyze?depth=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("depth 0: status = %d, want 400", rec.Code)
	}
}

func TestNoEngine(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)
	for _, path := range []string{"/v1/analyze", "/v1/engine"} {
		if rec := get(t, h, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestEngineInfo(t *testing.T) {
	h, _ := newTestRouter(t, true, nil)
	resp := decode[EngineResponse](t, get(t, h, "/v1/engine"))
	if resp.Name != "Fakefish 1" {
		t.Errorf("name = %q", resp.Name)
	}
	if len(resp.Options) != 4 {
		t.Errorf("options = %d, want 4", len(resp.Options))
	}
}

func TestOpening(t *testing.T) {
	db := openings.NewDatabase()
	table := "eco\tname\tpgn\nC20\tKing's Pawn Game\t1. e4 e5\n"
	if err := db.Load(strings.NewReader(table)); err != nil {
		t.Fatal(err)
	}
	h, _ := newTestRouter(t, false, db)

	tests := []struct {
		target string
		code   int
	}{
		{"/v1/opening/e2e4/e7e5", http.StatusOK},
		{"/v1/opening/?moves=e2e4+e7e5", http.StatusOK},
		{"/v1/opening/d2d4", http.StatusNotFound},
		{"/v1/opening/e2e5", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rec := get(t, h, tc.target)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.code, rec.Body.String())
			}
			if tc.code == http.StatusOK {
				resp := decode[map[string]string](t, rec)
				if resp["eco"] != "C20" {
					t.Errorf("eco = %s, want C20", resp["eco"])
				}
			}
		})
	}

	resp := decode[PositionResponse](t, get(t, h, "/v1/position?moves=e2e4,e7e5"))
	if resp.ECO != "C20" || resp.Opening != "King's Pawn Game" {
		t.Errorf("position opening = %s %q", resp.ECO, resp.Opening)
	}
}

func TestMiddleware(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abcd1234")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rid := rec.Header().Get("X-Request-ID"); rid != "abcd1234" {
		t.Errorf("request id = %q, want the client's", rid)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id!!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rid := rec.Header().Get("X-Request-ID"); rid == "bad id!!" || len(rid) != 8 {
		t.Errorf("request id = %q, want a fresh one", rid)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestCORS(t *testing.T) {
	h, _ := newTestRouter(t, false, nil)

	tests := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"preflight", http.MethodOptions, "/v1/search", http.StatusNoContent},
		{"simple get", http.MethodGet, "/healthz", http.StatusOK},
		{"error response", http.MethodGet, "/v1/position?fen=nonsense", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			req.Header.Set("Origin", "https://example.org")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			want := map[string]string{
				"Access-Control-Allow-Origin":   "*",
				"Access-Control-Expose-Headers": "X-Request-ID",
			}
			for k, v := range want {
				if got := rec.Header().Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			// Preflights are answered before the request id is assigned.
			if tc.method != http.MethodOptions && rec.Header().Get("X-Request-ID") == "" {
				t.Error("request id missing behind CORS")
			}
		})
	}
}
