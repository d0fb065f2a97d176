package board

import "fmt"

// Move encoding (uint32):
//   bits 0-5:   from square (0-63)
//   bits 6-11:  to square (0-63)
//   bits 12-14: promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
//   bits 15-17: moving role
//   bits 18-20: captured role (0=none)
//   bit  21:    en passant
//   bit  22:    castle
type Move uint32

const (
	moveFromMask     = 0x3F
	moveToMask       = 0xFC0
	movePromoMask    = 0x7000
	moveRoleMask     = 0x38000
	moveCaptureMask  = 0x1C0000
	moveToShift      = 6
	movePromoShift   = 12
	moveRoleShift    = 15
	moveCaptureShift = 18

	flagEnPassant Move = 1 << 21
	flagCastle    Move = 1 << 22
)

// Promotion piece codes.
const (
	PromoNone   = 0
	PromoQueen  = 1
	PromoRook   = 2
	PromoBishop = 3
	PromoKnight = 4
)

// NoMove is the zero move. It never matches a legal move.
const NoMove Move = 0

// EncodeMove creates a Move from square indices and optional promotion.
// Role and capture information is attached by the position that generated it.
func EncodeMove(from, to Square, promo byte) Move {
	if !from.Valid() || !to.Valid() || promo > PromoKnight {
		return NoMove
	}
	return Move(uint32(from) | uint32(to)<<moveToShift | uint32(promo)<<movePromoShift)
}

func newMove(from, to Square, promo byte, role, captured Role, ep, castle bool) Move {
	m := EncodeMove(from, to, promo)
	m |= Move(uint32(role) << moveRoleShift)
	m |= Move(uint32(captured) << moveCaptureShift)
	if ep {
		m |= flagEnPassant
	}
	if castle {
		m |= flagCastle
	}
	return m
}

// From returns the origin square.
func (m Move) From() Square { return Square(m & moveFromMask) }

// To returns the destination square.
func (m Move) To() Square { return Square((m & moveToMask) >> moveToShift) }

// Promotion returns the promotion code (PromoNone when not a promotion).
func (m Move) Promotion() byte { return byte((m & movePromoMask) >> movePromoShift) }

// Role returns the role of the moving piece, NoRole for bare encoded moves.
func (m Move) Role() Role { return Role((m & moveRoleMask) >> moveRoleShift) }

// Captured returns the captured role, NoRole for quiet moves.
func (m Move) Captured() Role { return Role((m & moveCaptureMask) >> moveCaptureShift) }

func (m Move) IsCapture() bool   { return m.Captured() != NoRole }
func (m Move) IsEnPassant() bool { return m&flagEnPassant != 0 }
func (m Move) IsCastle() bool    { return m&flagCastle != 0 }

// SameSquares reports whether two moves share from, to and promotion,
// ignoring role and capture annotations.
func (m Move) SameSquares(o Move) bool {
	const key = moveFromMask | moveToMask | movePromoMask
	return m&key == o&key
}

// UCI converts a Move to UCI notation (e.g., "e2e4", "e7e8q").
func (m Move) UCI() string {
	if m == NoMove {
		return "0000"
	}
	uci := m.From().String() + m.To().String()
	if promo := m.Promotion(); promo > 0 {
		uci += string("qrbn"[promo-1])
	}
	return uci
}

func (m Move) String() string { return m.UCI() }

// ParseUCI parses a UCI move string into a bare Move (squares and promotion).
// Use Position.MoveFromUCI to resolve it against the legal moves.
// Examples: "e2e4", "e7e8q", "a1h8"
func ParseUCI(uci string) (Move, error) {
	if len(uci) < 4 || len(uci) > 5 {
		return NoMove, fmt.Errorf("invalid UCI move length: %q", uci)
	}
	from, err := ParseSquare(uci[0:2])
	if err != nil {
		return NoMove, fmt.Errorf("invalid from square in UCI %q: %w", uci, err)
	}
	to, err := ParseSquare(uci[2:4])
	if err != nil {
		return NoMove, fmt.Errorf("invalid to square in UCI %q: %w", uci, err)
	}

	var promo byte = PromoNone
	if len(uci) == 5 {
		switch uci[4] {
		case 'q', 'Q':
			promo = PromoQueen
		case 'r', 'R':
			promo = PromoRook
		case 'b', 'B':
			promo = PromoBishop
		case 'n', 'N':
			promo = PromoKnight
		default:
			return NoMove, fmt.Errorf("invalid promotion piece: %c", uci[4])
		}
	}
	return EncodeMove(from, to, promo), nil
}
