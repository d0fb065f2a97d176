package board

import "fmt"

// Square indexes the board A1=0, B1=1, ..., H8=63.
type Square uint8

// Side is the colour to move.
type Side uint8

const (
	White Side = iota
	Black
)

func (s Side) Other() Side { return s ^ 1 }

func (s Side) String() string {
	if s == White {
		return "white"
	}
	return "black"
}

// Role is a piece type.
type Role uint8

const (
	NoRole Role = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Roles lists the six real roles in table order.
var Roles = [...]Role{Pawn, Knight, Bishop, Rook, Queen, King}

func (r Role) String() string {
	switch r {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "none"
}

// Piece is a role owned by a side.
type Piece struct {
	Role Role
	Side Side
}

func (sq Square) File() int   { return int(sq) % 8 }
func (sq Square) Rank() int   { return int(sq) / 8 }
func (sq Square) Valid() bool { return sq < 64 }

// Mirror flips the square vertically (a1 <-> a8).
func (sq Square) Mirror() Square { return sq ^ 56 }

func (sq Square) String() string {
	if !sq.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + sq.File()), byte('1' + sq.Rank())})
}

// SquareAt builds a square from 0-based file and rank.
func SquareAt(file, rank int) Square {
	return Square(rank*8 + file)
}

// ParseSquare parses algebraic square names like "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	return SquareAt(file, rank), nil
}
