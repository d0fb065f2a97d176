package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/engine"
	"github.com/wspeirs/fishermann/internal/openings"
	"github.com/wspeirs/fishermann/internal/search"
)

const (
	defaultSearchDepth  = 4
	defaultAnalyzeDepth = 12
	maxAnalyzeDepth     = 60
)

// Handler serves positions, local searches and engine analysis.
type Handler struct {
	searcher *search.Searcher
	session  *engine.Session
	ecoDB    *openings.Database
	log      zerolog.Logger
}

// NewRouter creates the HTTP router.
// session is optional - without it /v1/analyze and /v1/engine answer 503.
// ecoDB is optional - if provided, opening names will be included in responses.
func NewRouter(log zerolog.Logger, searcher *search.Searcher, session *engine.Session, ecoDB *openings.Database) http.Handler {
	if searcher == nil {
		searcher = search.New(search.Config{})
	}
	h := &Handler{
		searcher: searcher,
		session:  session,
		ecoDB:    ecoDB,
		log:      log,
	}

	if session != nil {
		log.Info().Str("engine", session.ID().Name).Msg("engine analysis enabled")
	} else {
		log.Info().Msg("engine analysis disabled - run with -stockfish to enable")
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.ready))
	mux.Handle("/v1/position", http.HandlerFunc(h.position))
	mux.Handle("/v1/search", http.HandlerFunc(h.search))
	mux.Handle("/v1/search/moves", http.HandlerFunc(h.searchMoves))
	mux.Handle("/v1/analyze", http.HandlerFunc(h.analyze))
	mux.Handle("/v1/engine", http.HandlerFunc(h.engineInfo))
	mux.Handle("/v1/opening/", http.HandlerFunc(h.opening))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	handler := CORS(RequestID(AccessLog(log, mux)))
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready fails once the engine session is broken.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.session != nil {
		if err := h.session.Err(); err != nil {
			http.Error(w, "engine unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	h.health(w, r)
}

// resolvePosition reads the fen param (default: start position) and plays
// the optional space or comma separated UCI moves param from it.
func resolvePosition(r *http.Request) (board.Position, []PathNode, error) {
	q := r.URL.Query()
	pos := board.Start()
	if fen := q.Get("fen"); fen != "" {
		var err error
		if pos, err = board.Parse(fen); err != nil {
			return board.Position{}, nil, err
		}
	}

	var path []PathNode
	moves := strings.FieldsFunc(q.Get("moves"), func(r rune) bool { return r == ',' || r == ' ' })
	for _, uci := range moves {
		m, err := pos.MoveFromUCI(uci)
		if err != nil {
			return board.Position{}, nil, err
		}
		san := pos.SAN(m)
		pos = pos.Apply(m)
		path = append(path, PathNode{FEN: pos.FEN(), UCI: m.UCI(), SAN: san})
	}
	return pos, path, nil
}

func depthParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("depth")
	if v == "" {
		return def, nil
	}
	d, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid depth parameter")
	}
	return d, nil
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	pos, path, err := resolvePosition(r)
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp := ToPositionResponse(pos, h.ecoDB)
	resp.Path = path
	writeJSON(w, resp)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	pos, _, err := resolvePosition(r)
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}
	depth, err := depthParam(r, defaultSearchDepth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.searcher.Search(pos, depth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := SearchResponse{
		FEN:   pos.FEN(),
		Depth: depth,
		Score: toScore(res.Score),
		PV:    make([]string, 0, len(res.PV)),
		PVSAN: make([]string, 0, len(res.PV)),
		Nodes: res.Nodes,
	}
	if best, ok := res.BestMove(); ok {
		resp.BestMove = best.UCI()
	}
	p := pos
	for _, m := range res.PV {
		resp.PV = append(resp.PV, m.UCI())
		resp.PVSAN = append(resp.PVSAN, p.SAN(m))
		p = p.Apply(m)
	}

	h.log.Debug().
		Str("rid", GetRequestID(r.Context())).
		Int("depth", depth).
		Int64("nodes", res.Nodes).
		Msg("search done")
	writeJSON(w, resp)
}

func (h *Handler) searchMoves(w http.ResponseWriter, r *http.Request) {
	pos, _, err := resolvePosition(r)
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}
	depth, err := depthParam(r, defaultSearchDepth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scores, nodes, err := h.searcher.SearchMoves(r.Context(), pos, depth)
	if err != nil {
		if errors.Is(err, search.ErrDepth) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Warn().Err(err).Str("rid", GetRequestID(r.Context())).Msg("search moves")
		http.Error(w, "search aborted", http.StatusServiceUnavailable)
		return
	}

	resp := RootMovesResponse{
		FEN:   pos.FEN(),
		Depth: depth,
		Nodes: nodes,
		Moves: make([]RootMoveResponse, 0, len(scores)),
	}
	for _, ms := range scores {
		pv := make([]string, 0, len(ms.PV))
		for _, m := range ms.PV {
			pv = append(pv, m.UCI())
		}
		resp.Moves = append(resp.Moves, RootMoveResponse{
			UCI:   ms.Move.UCI(),
			SAN:   pos.SAN(ms.Move),
			Score: toScore(ms.Score),
			PV:    pv,
		})
	}
	writeJSON(w, resp)
}

// analyze streams engine output as newline-delimited JSON. A client that
// disconnects cancels the request context, which stops the engine.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "no engine configured", http.StatusServiceUnavailable)
		return
	}
	pos, _, err := resolvePosition(r)
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}
	depth, err := depthParam(r, defaultAnalyzeDepth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if depth < 1 || depth > maxAnalyzeDepth {
		http.Error(w, "depth out of range", http.StatusBadRequest)
		return
	}

	rid := GetRequestID(r.Context())
	st, err := h.session.Analyze(r.Context(), pos.FEN(), depth)
	if err != nil {
		h.log.Warn().Err(err).Str("rid", rid).Msg("start analysis")
		http.Error(w, "engine unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for msg := range st.Messages {
		if err := enc.Encode(toEvent(msg)); err != nil {
			st.Stop()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := st.Err(); err != nil {
		h.log.Warn().Err(err).Str("rid", rid).Msg("analysis ended")
		_ = enc.Encode(AnalysisEvent{Type: "error", Error: err.Error()})
	}
}

func (h *Handler) engineInfo(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		http.Error(w, "no engine configured", http.StatusServiceUnavailable)
		return
	}
	id := h.session.ID()
	writeJSON(w, EngineResponse{
		Name:    id.Name,
		Author:  id.Author,
		Options: h.session.Options(),
	})
}

// opening looks up /v1/opening/<uci moves separated by slashes>, or the
// fen / moves params when the path has no moves.
func (h *Handler) opening(w http.ResponseWriter, r *http.Request) {
	if h.ecoDB == nil {
		http.Error(w, "no opening database loaded", http.StatusNotFound)
		return
	}

	var (
		pos board.Position
		err error
	)
	parts := splitPath(r.URL.Path)
	if len(parts) > 2 {
		pos = board.Start()
		for _, uci := range parts[2:] {
			var m board.Move
			if m, err = pos.MoveFromUCI(uci); err != nil {
				break
			}
			pos = pos.Apply(m)
		}
	} else {
		pos, _, err = resolvePosition(r)
	}
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}

	o := h.ecoDB.Lookup(pos)
	if o == nil {
		http.Error(w, "opening not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"fen":  pos.FEN(),
		"eco":  o.ECO,
		"name": o.Name,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
	// Don't call http.Error after setting headers - it causes "superfluous WriteHeader"
}

// splitPath splits a URL path into parts
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
