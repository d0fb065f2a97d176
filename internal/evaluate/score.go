// Package evaluate holds the static evaluator and the saturating score scale
// shared by the search.
package evaluate

import (
	"math"
	"strconv"
)

// Score is a signed evaluation in centipawns.
type Score int32

const (
	// ScoreMax is a forced win for the side to move.
	ScoreMax Score = math.MaxInt32
	// ScoreMin is a forced loss for the side to move.
	ScoreMin Score = math.MinInt32
)

// Negate flips the perspective of s. The two sentinels map onto each other
// instead of overflowing, so Negate(Negate(s)) == s for every s.
func Negate(s Score) Score {
	switch s {
	case ScoreMin:
		return ScoreMax
	case ScoreMax:
		return ScoreMin
	}
	return -s
}

// IsMate reports whether s is one of the forced-result sentinels.
func (s Score) IsMate() bool { return s == ScoreMax || s == ScoreMin }

func (s Score) String() string {
	switch s {
	case ScoreMax:
		return "+mate"
	case ScoreMin:
		return "-mate"
	}
	return strconv.Itoa(int(s))
}
