package engine

import (
	"context"
	"fmt"
	"sort"
)

// CollectBestLine drains the stream and returns the last scored principal
// line (MultiPV 1) seen before the BestMove. The line may have no PV: engines
// report a mated or stalemated root as "info depth 0 score mate 0".
func CollectBestLine(st *Stream) (CandidateLine, BestMove, error) {
	var best CandidateLine
	for msg := range st.Messages {
		switch m := msg.(type) {
		case CandidateLine:
			if m.HasScore && m.MultiPV == 1 {
				best = m
			}
		case BestMove:
			return best, m, nil
		}
	}
	return best, BestMove{}, incomplete(st)
}

// CandidatesAtDepth drains the stream and returns the scored lines reported
// at exactly depth, one per MultiPV index (the latest report wins), ordered
// by index.
func CandidatesAtDepth(st *Stream, depth int) ([]CandidateLine, BestMove, error) {
	byPV := make(map[int]CandidateLine)
	for msg := range st.Messages {
		switch m := msg.(type) {
		case CandidateLine:
			if m.Depth == depth && m.HasScore && len(m.PV) > 0 {
				byPV[m.MultiPV] = m
			}
		case BestMove:
			return sortedLines(byPV), m, nil
		}
	}
	return sortedLines(byPV), BestMove{}, incomplete(st)
}

func sortedLines(byPV map[int]CandidateLine) []CandidateLine {
	lines := make([]CandidateLine, 0, len(byPV))
	for _, l := range byPV {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].MultiPV < lines[j].MultiPV })
	return lines
}

func incomplete(st *Stream) error {
	if err := st.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: analysis ended without bestmove", ErrProtocol)
}

// Evaluate analyses fen to depth and returns the engine's final principal
// line and best move.
func (s *Session) Evaluate(ctx context.Context, fen string, depth int) (CandidateLine, BestMove, error) {
	st, err := s.Analyze(ctx, fen, depth)
	if err != nil {
		return CandidateLine{}, BestMove{}, err
	}
	return CollectBestLine(st)
}
