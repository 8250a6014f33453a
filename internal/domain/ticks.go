package domain

import "math"

// tickEpsilon absorbs float64 representation error when comparing values that
// were produced by tick arithmetic.
const tickEpsilon = 1e-9

// RoundToTick snaps v to the nearest multiple of tick. A zero tick returns v
// unchanged.
func RoundToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Round(v/tick) * tick
}

// IsTickMultiple reports whether v is a whole multiple of tick within
// floating-point tolerance.
func IsTickMultiple(v, tick float64) bool {
	if tick <= 0 {
		return true
	}
	q := v / tick
	return math.Abs(q-math.Round(q)) < tickEpsilon*math.Max(1, math.Abs(q))
}

// WithinTick reports whether a and b differ by at most one tick (plus
// tolerance). Used for the accepted supply == accepted demand invariant.
func WithinTick(a, b, tick float64) bool {
	if tick <= 0 {
		tick = tickEpsilon
	}
	return math.Abs(a-b) <= tick+tickEpsilon
}
