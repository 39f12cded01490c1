// Package trajectory produces single-segment quintic motion profiles with
// zero velocity and zero acceleration at both endpoints.
package trajectory

import "errors"

// ErrInvalidDuration is returned when a segment duration is not positive.
var ErrInvalidDuration = errors.New("segment duration must be positive")

// Coeffs holds one quintic segment: the polynomial coefficients a0..a5,
// the segment duration and the exact endpoint value.
type Coeffs struct {
	A   [6]float64
	T   float64
	End float64
}

// Coefficients computes the quintic from q0 to qf over the given duration
// in seconds. The boundary conditions pin position to q0 and qf with zero
// velocity and acceleration at both ends, which leaves a1 = a2 = 0.
func Coefficients(q0, qf, duration float64) (Coeffs, error) {
	if duration <= 0 {
		return Coeffs{}, ErrInvalidDuration
	}
	d := qf - q0
	t3 := duration * duration * duration
	return Coeffs{
		A: [6]float64{
			q0,
			0,
			0,
			10 * d / t3,
			-15 * d / (t3 * duration),
			6 * d / (t3 * duration * duration),
		},
		T:   duration,
		End: qf,
	}, nil
}

// Evaluate returns the profile position at elapsed time t. Times are
// clamped to [0, T]; at or beyond T the result is exactly the endpoint,
// so a finished segment never drifts.
func (c Coeffs) Evaluate(t float64) float64 {
	if t <= 0 {
		return c.A[0]
	}
	if t >= c.T {
		return c.End
	}
	t2 := t * t
	t3 := t2 * t
	return c.A[0] + c.A[1]*t + c.A[2]*t2 + c.A[3]*t3 + c.A[4]*t3*t + c.A[5]*t3*t2
}

// Velocity returns the profile velocity at elapsed time t, clamped to the
// segment bounds where it is zero by construction.
func (c Coeffs) Velocity(t float64) float64 {
	if t <= 0 || t >= c.T {
		return 0
	}
	t2 := t * t
	t3 := t2 * t
	return c.A[1] + 2*c.A[2]*t + 3*c.A[3]*t2 + 4*c.A[4]*t3 + 5*c.A[5]*t3*t
}
