package kinematics

import "math"

// NormalizeDeg wraps an angle to the half-open interval (-180, 180].
func NormalizeDeg(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

// shortestArc is the signed smallest rotation taking from to to.
func shortestArc(from, to float64) float64 {
	return NormalizeDeg(to - from)
}

func atan2Deg(y, x float64) float64 {
	return math.Atan2(y, x) * 180 / math.Pi
}

func cosSinDeg(a float64) (c, s float64) {
	r := a * math.Pi / 180
	return math.Cos(r), math.Sin(r)
}
