// Package board wraps github.com/notnil/chess behind the small position
// capability the evaluator, search and drivers need: clone, legal moves,
// apply, terminal status and FEN.
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartFEN is the standard starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable chess position. Apply returns a new Position and
// never modifies the receiver.
//
// A Position lazily caches its legal moves, so a single value must not be
// used from several goroutines at once; hand each goroutine its own Clone
// or a child produced by Apply.
type Position struct {
	pos *chess.Position
}

// Start returns the standard starting position.
func Start() Position {
	return Position{pos: chess.NewGame().Position()}
}

// Parse decodes a FEN. Four-field EPD strings are accepted and get "0 1"
// move counters.
func Parse(fen string) (Position, error) {
	fields := strings.Fields(fen)
	switch len(fields) {
	case 4:
		fields = append(fields, "0", "1")
	case 6:
	default:
		return Position{}, fmt.Errorf("invalid FEN %q: want 4 or 6 fields, got %d", fen, len(fields))
	}

	opt, err := chess.FEN(strings.Join(fields, " "))
	if err != nil {
		return Position{}, fmt.Errorf("invalid FEN %q: %w", fen, err)
	}
	return Position{pos: chess.NewGame(opt).Position()}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(fen string) Position {
	p, err := Parse(fen)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether p holds a position (the zero Position does not).
func (p Position) Valid() bool { return p.pos != nil }

// Clone returns an independent copy of p.
func (p Position) Clone() Position {
	return MustParse(p.FEN())
}

// FEN encodes the position.
func (p Position) FEN() string { return p.pos.String() }

// EPD returns the first four FEN fields (no move counters).
func (p Position) EPD() string {
	fields := strings.Fields(p.FEN())
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func (p Position) String() string { return p.FEN() }

// SideToMove returns the side whose turn it is.
func (p Position) SideToMove() Side {
	if p.pos.Turn() == chess.Black {
		return Black
	}
	return White
}

// HalfMoveClock returns the number of plies since the last capture or pawn move.
func (p Position) HalfMoveClock() int {
	fields := strings.Fields(p.FEN())
	if len(fields) < 5 {
		return 0
	}
	n, _ := strconv.Atoi(fields[4])
	return n
}

// IsCheckmate reports whether the side to move is mated.
func (p Position) IsCheckmate() bool { return p.pos.Status() == chess.Checkmate }

// IsStalemate reports whether the side to move has no legal move and is not in check.
func (p Position) IsStalemate() bool { return p.pos.Status() == chess.Stalemate }

// IsTerminal reports checkmate or stalemate.
func (p Position) IsTerminal() bool { return p.pos.Status() != chess.NoMethod }

// InsufficientMaterial reports positions where neither side can mate:
// bare kings, or kings plus a single minor piece.
func (p Position) InsufficientMaterial() bool {
	minors := 0
	for _, piece := range p.pos.Board().SquareMap() {
		switch piece.Type() {
		case chess.King:
		case chess.Knight, chess.Bishop:
			minors++
		default:
			return false
		}
	}
	return minors <= 1
}

// Each calls fn for every occupied square.
func (p Position) Each(fn func(sq Square, piece Piece)) {
	for sq, piece := range p.pos.Board().SquareMap() {
		fn(Square(sq), Piece{Role: roleOf(piece.Type()), Side: sideOf(piece.Color())})
	}
}

// PieceAt returns the piece on sq and whether the square is occupied.
func (p Position) PieceAt(sq Square) (Piece, bool) {
	piece := p.pos.Board().Piece(chess.Square(sq))
	if piece == chess.NoPiece {
		return Piece{}, false
	}
	return Piece{Role: roleOf(piece.Type()), Side: sideOf(piece.Color())}, true
}

// LegalMoves returns the legal moves in generator order.
func (p Position) LegalMoves() []Move {
	valid := p.pos.ValidMoves()
	b := p.pos.Board()
	moves := make([]Move, 0, len(valid))
	for _, cm := range valid {
		moves = append(moves, p.convert(b, cm))
	}
	return moves
}

func (p Position) convert(b *chess.Board, cm *chess.Move) Move {
	role := roleOf(b.Piece(cm.S1()).Type())
	captured := roleOf(b.Piece(cm.S2()).Type())
	ep := cm.HasTag(chess.EnPassant)
	if ep {
		captured = Pawn
	}
	castle := cm.HasTag(chess.KingSideCastle) || cm.HasTag(chess.QueenSideCastle)
	return newMove(Square(cm.S1()), Square(cm.S2()), promoOf(cm.Promo()), role, captured, ep, castle)
}

func (p Position) find(m Move) *chess.Move {
	for _, cm := range p.pos.ValidMoves() {
		if EncodeMove(Square(cm.S1()), Square(cm.S2()), promoOf(cm.Promo())).SameSquares(m) {
			return cm
		}
	}
	return nil
}

// Apply plays m and returns the resulting position. Applying a move that is
// not legal in p is a programming error and panics.
func (p Position) Apply(m Move) Position {
	cm := p.find(m)
	if cm == nil {
		panic(fmt.Sprintf("board: illegal move %s in %s", m, p.FEN()))
	}
	return Position{pos: p.pos.Update(cm)}
}

// IsLegal reports whether m (compared by squares and promotion) is legal in p.
func (p Position) IsLegal(m Move) bool { return p.find(m) != nil }

// MoveFromUCI resolves a UCI string against the legal moves of p.
func (p Position) MoveFromUCI(uci string) (Move, error) {
	bare, err := ParseUCI(uci)
	if err != nil {
		return NoMove, err
	}
	cm := p.find(bare)
	if cm == nil {
		return NoMove, fmt.Errorf("move %s is not legal in %s", uci, p.FEN())
	}
	return p.convert(p.pos.Board(), cm), nil
}

// SAN returns m in standard algebraic notation, or its UCI form if m is not legal.
func (p Position) SAN(m Move) string {
	cm := p.find(m)
	if cm == nil {
		return m.UCI()
	}
	return chess.AlgebraicNotation{}.Encode(p.pos, cm)
}

func roleOf(t chess.PieceType) Role {
	switch t {
	case chess.Pawn:
		return Pawn
	case chess.Knight:
		return Knight
	case chess.Bishop:
		return Bishop
	case chess.Rook:
		return Rook
	case chess.Queen:
		return Queen
	case chess.King:
		return King
	}
	return NoRole
}

func sideOf(c chess.Color) Side {
	if c == chess.Black {
		return Black
	}
	return White
}

func promoOf(t chess.PieceType) byte {
	switch t {
	case chess.Queen:
		return PromoQueen
	case chess.Rook:
		return PromoRook
	case chess.Bishop:
		return PromoBishop
	case chess.Knight:
		return PromoKnight
	}
	return PromoNone
}
