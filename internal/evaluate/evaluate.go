package evaluate

import "github.com/wspeirs/fishermann/internal/board"

// Evaluator scores positions from piece-square tables. The zero value is
// the base evaluator; Tempo adds a fixed bonus for the side to move.
type Evaluator struct {
	Tempo Score
}

// Evaluate returns the white-positive score of p.
func (e Evaluator) Evaluate(p board.Position) Score {
	var white, black Score
	p.Each(func(sq board.Square, piece board.Piece) {
		if piece.Side == board.White {
			white += pieceSquare[piece.Role][sq.Mirror()]
		} else {
			black += pieceSquare[piece.Role][sq]
		}
	})

	score := white - black
	if e.Tempo != 0 {
		if p.SideToMove() == board.White {
			score += e.Tempo
		} else {
			score -= e.Tempo
		}
	}
	return score
}

// Relative returns the score of p from the side to move's point of view.
func (e Evaluator) Relative(p board.Position) Score {
	score := e.Evaluate(p)
	if p.SideToMove() == board.Black {
		return -score
	}
	return score
}

// Evaluate scores p with the base evaluator.
func Evaluate(p board.Position) Score {
	return Evaluator{}.Evaluate(p)
}
