package trajectory

import (
	"errors"
	"math"
	"testing"
)

func TestCoefficientsRejectsBadDuration(t *testing.T) {
	for _, d := range []float64{0, -0.5} {
		if _, err := Coefficients(10, 20, d); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Coefficients(duration=%v) err = %v, want ErrInvalidDuration", d, err)
		}
	}
}

func TestQuinticBoundaryConditions(t *testing.T) {
	tests := []struct {
		q0, qf, dur float64
	}{
		{0, 45.4, 1.0},
		{-90, 90, 0.5},
		{10, 10, 2.0},
		{120, -30, 3.5},
		{0.1, 0.2, 0.02},
	}

	for _, tt := range tests {
		c, err := Coefficients(tt.q0, tt.qf, tt.dur)
		if err != nil {
			t.Fatalf("Coefficients(%v, %v, %v): %v", tt.q0, tt.qf, tt.dur, err)
		}

		if got := c.Evaluate(0); math.Abs(got-tt.q0) > 1e-9 {
			t.Errorf("Evaluate(0) = %v, want %v", got, tt.q0)
		}
		if got := c.Evaluate(tt.dur); got != tt.qf {
			t.Errorf("Evaluate(T) = %v, want exactly %v", got, tt.qf)
		}

		// Velocity vanishes at both endpoints. Check analytically and via
		// a numeric derivative just inside the segment.
		if got := c.Velocity(0); got != 0 {
			t.Errorf("Velocity(0) = %v, want 0", got)
		}
		if got := c.Velocity(tt.dur); got != 0 {
			t.Errorf("Velocity(T) = %v, want 0", got)
		}
		eps := tt.dur * 1e-6
		scale := math.Max(1, math.Abs(tt.qf-tt.q0))
		if v0 := (c.Evaluate(eps) - c.Evaluate(0)) / eps; math.Abs(v0) > 1e-3*scale {
			t.Errorf("numeric velocity at 0 = %v, want ~0", v0)
		}
		if vT := (c.Evaluate(tt.dur) - c.Evaluate(tt.dur-eps)) / eps; math.Abs(vT) > 1e-3*scale {
			t.Errorf("numeric velocity at T = %v, want ~0", vT)
		}
	}
}

func TestQuinticMidpoint(t *testing.T) {
	c, err := Coefficients(0, 45.4, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	// The rest-to-rest quintic is symmetric: half the displacement at T/2,
	// peak velocity 15d/(8T) at the same point.
	if got := c.Evaluate(0.5); math.Abs(got-22.7) > 1e-9 {
		t.Errorf("Evaluate(T/2) = %v, want 22.7", got)
	}
	wantPeak := 15 * 45.4 / 8.0
	if got := c.Velocity(0.5); math.Abs(got-wantPeak) > 1e-9 {
		t.Errorf("Velocity(T/2) = %v, want %v", got, wantPeak)
	}

	// Strictly between the endpoints away from the midpoint too.
	for _, at := range []float64{0.1, 0.3, 0.7, 0.9} {
		got := c.Evaluate(at)
		if got <= 0 || got >= 45.4 {
			t.Errorf("Evaluate(%v) = %v, want strictly inside (0, 45.4)", at, got)
		}
	}
}

func TestQuinticClamping(t *testing.T) {
	c, err := Coefficients(-10, 30, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	if got := c.Evaluate(-1); got != -10 {
		t.Errorf("Evaluate(-1) = %v, want -10", got)
	}
	// Beyond the duration the result is the exact endpoint, not a
	// polynomial evaluation that could drift.
	for _, at := range []float64{2.0, 2.0001, 100} {
		if got := c.Evaluate(at); got != 30 {
			t.Errorf("Evaluate(%v) = %v, want exactly 30", at, got)
		}
	}
}

func TestQuinticZeroDisplacement(t *testing.T) {
	c, err := Coefficients(42, 42, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	for _, at := range []float64{0, 0.3, 0.75, 1.5, 2} {
		if got := c.Evaluate(at); got != 42 {
			t.Errorf("Evaluate(%v) = %v, want 42", at, got)
		}
	}
}
