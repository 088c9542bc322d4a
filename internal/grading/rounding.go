package grading

import "math"

// roundingNudge compensates binary representation error so that values such as 12.345 round up.
const roundingNudge = 1e-9

// Round2 rounds v to two decimals using half-up rounding.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100+math.Copysign(roundingNudge, v)) / 100
}
