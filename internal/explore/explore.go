// Package explore surveys the opening: for every white first move it plays a
// fixed black reply, asks the engine for its top lines, and tallies which
// side the engine prefers.
package explore

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wspeirs/fishermann/internal/board"
	"github.com/wspeirs/fishermann/internal/engine"
)

// Config configures a survey.
type Config struct {
	Depth       int  // Engine depth; only lines reported at this depth count (0 = 10)
	Lines       int  // MultiPV lines per position (0 = 3)
	SecondMoves bool // Also expand every white second move with a second black reply
	Logger      zerolog.Logger
}

// Response is one engine line after a fixed opening sequence.
type Response struct {
	Moves []string // Opening sequence then the engine's first move, UCI
	Score int      // Centipawns for white, or moves to mate when Mate
	Mate  bool
}

func (r Response) String() string {
	score := strconv.Itoa(r.Score)
	if r.Mate {
		score = "#" + score
	}
	return score + ": " + strings.Join(r.Moves, ", ")
}

// Report is the outcome of a survey.
type Report struct {
	Responses      []Response
	WhiteAdvantage int     // Lines scored in white's favour
	BlackAdvantage int     // Lines scored in black's favour
	AvgWhite       float64 // Sum of positive centipawn scores / all lines
	AvgBlack       float64 // Sum of negative centipawn scores / all lines
}

// Write prints every response followed by the summary.
func (r Report) Write(w io.Writer) error {
	for _, resp := range r.Responses {
		if _, err := fmt.Fprintf(w, "\t%s\n", resp); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "WHITE ADV: %d + BLACK ADV: %d = %d\nAVG WHITE ADV: %.2f\tAVG BLACK ADV: %.2f\n",
		r.WhiteAdvantage, r.BlackAdvantage, len(r.Responses), r.AvgWhite, r.AvgBlack)
	return err
}

// Run performs the survey on s. It sets MultiPV on the session.
func Run(ctx context.Context, s *engine.Session, cfg Config) (Report, error) {
	if cfg.Depth == 0 {
		cfg.Depth = 10
	}
	if cfg.Lines == 0 {
		cfg.Lines = 3
	}
	log := cfg.Logger.With().Str("component", "explore").Logger()

	if err := s.SetOption(ctx, "MultiPV", strconv.Itoa(cfg.Lines)); err != nil {
		return Report{}, err
	}

	var report Report
	start := board.Start()
	for _, w1 := range start.LegalMoves() {
		p1 := start.Apply(w1)
		b1 := firstReply(p1, w1)
		p2 := p1.Apply(b1)
		seq := []board.Move{w1, b1}

		if !cfg.SecondMoves {
			if err := analyse(ctx, s, cfg, p2, seq, &report); err != nil {
				report.summarize()
				return report, err
			}
			continue
		}
		for _, w2 := range p2.LegalMoves() {
			p3 := p2.Apply(w2)
			b2 := secondReply(p3)
			if err := analyse(ctx, s, cfg, p3.Apply(b2), append(seq[:2:2], w2, b2), &report); err != nil {
				report.summarize()
				return report, err
			}
		}
		log.Debug().Str("first", w1.UCI()).Int("responses", len(report.Responses)).Msg("first move done")
	}

	report.summarize()
	log.Info().
		Int("responses", len(report.Responses)).
		Int("white_adv", report.WhiteAdvantage).
		Int("black_adv", report.BlackAdvantage).
		Msg("survey finished")
	return report, nil
}

func analyse(ctx context.Context, s *engine.Session, cfg Config, p board.Position, seq []board.Move, report *Report) error {
	st, err := s.Analyze(ctx, p.FEN(), cfg.Depth)
	if err != nil {
		return err
	}
	lines, _, err := engine.CandidatesAtDepth(st, cfg.Depth)
	if err != nil {
		return fmt.Errorf("analyse %s: %w", p.FEN(), err)
	}

	prefix := make([]string, 0, len(seq)+1)
	for _, m := range seq {
		prefix = append(prefix, m.UCI())
	}
	white := p.SideToMove() == board.White
	for _, l := range lines {
		r := Response{Moves: append(prefix[:len(prefix):len(prefix)], l.First()), Score: l.Score, Mate: l.IsMate}
		if l.IsMate {
			r.Score = l.Mate
		}
		if !white {
			r.Score = -r.Score
		}
		report.Responses = append(report.Responses, r)
	}
	return nil
}

// firstReply answers a white first move on the queen side (files a-d) with
// f7f5 and anything else with c7c5.
func firstReply(p board.Position, white board.Move) board.Move {
	uci := "c7c5"
	if white.To().File() < 4 {
		uci = "f7f5"
	}
	return replyOrFirst(p, uci)
}

var f5, _ = board.ParseSquare("f5")

// secondReply develops the knight next to the f-pawn if it advanced, else
// the queen's knight.
func secondReply(p board.Position) board.Move {
	uci := "b8c6"
	if pc, ok := p.PieceAt(f5); ok && pc.Role == board.Pawn && pc.Side == board.Black {
		uci = "g8f6"
	}
	return replyOrFirst(p, uci)
}

func replyOrFirst(p board.Position, uci string) board.Move {
	if m, err := p.MoveFromUCI(uci); err == nil {
		return m
	}
	return p.LegalMoves()[0]
}

func (r *Report) summarize() {
	var white, black int
	for _, resp := range r.Responses {
		switch {
		case resp.Score > 0:
			r.WhiteAdvantage++
			if !resp.Mate {
				white += resp.Score
			}
		case resp.Score < 0:
			r.BlackAdvantage++
			if !resp.Mate {
				black += resp.Score
			}
		}
	}
	if n := len(r.Responses); n > 0 {
		r.AvgWhite = float64(white) / float64(n)
		r.AvgBlack = float64(black) / float64(n)
	}
}
