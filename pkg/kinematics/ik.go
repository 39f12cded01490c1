package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/gwillem/armlink/pkg/arm"
)

// ErrUnreachable reports a pose outside the arm's workspace or travel
// limits. It is an expected outcome, not a failure: callers hold position
// and wait for a better target.
var ErrUnreachable = errors.New("pose unreachable")

// domainTolerance is the slack allowed on the law-of-cosines domain check
// before a target counts as out of reach.
const domainTolerance = 1e-6

const (
	weightStep  = 0.2
	weightFloor = 0.1
)

// jointWeight favors keeping proximal joints still: weight falls off
// linearly with joint index and never drops below the floor.
func jointWeight(i int) float64 {
	w := 1.0 - weightStep*float64(i)
	if w < weightFloor {
		return weightFloor
	}
	return w
}

// displacementCost scores a candidate against the seed configuration by
// weighted shortest-arc distance per joint.
func displacementCost(cand, seed arm.JointVector) float64 {
	var cost float64
	for i := range cand {
		cost += jointWeight(i) * math.Abs(shortestArc(seed[i], cand[i]))
	}
	return cost
}

// SolveIK returns the joint configuration reaching the target pose,
// choosing between elbow branches by weighted displacement from the seed.
func (s *Solver) SolveIK(target arm.Pose, seed arm.JointVector) (arm.JointVector, error) {
	if err := seed.CheckLen(len(s.links)); err != nil {
		return nil, fmt.Errorf("inverse kinematics: %w", err)
	}
	cands, err := s.candidates(target)
	if err != nil {
		return nil, err
	}
	return pickMinCost(cands, seed), nil
}

// TrackIK is the branch-stable variant used for continuous tracking: while
// the seed has a definite elbow sign, candidates flipping that sign are
// only considered when no same-sign branch is admissible. A stream of
// small target increments therefore cannot snap the elbow through zero
// even when the flipped branch momentarily scores cheaper.
func (s *Solver) TrackIK(target arm.Pose, seed arm.JointVector) (arm.JointVector, error) {
	if err := seed.CheckLen(len(s.links)); err != nil {
		return nil, fmt.Errorf("inverse kinematics: %w", err)
	}
	cands, err := s.candidates(target)
	if err != nil {
		return nil, err
	}
	if sign := seed[2]; math.Abs(sign) > axisEpsilon {
		var same []arm.JointVector
		for _, c := range cands {
			if c[2]*sign >= 0 {
				same = append(same, c)
			}
		}
		if len(same) > 0 {
			cands = same
		}
	}
	return pickMinCost(cands, seed), nil
}

func pickMinCost(cands []arm.JointVector, seed arm.JointVector) arm.JointVector {
	best := cands[0]
	bestCost := displacementCost(best, seed)
	for _, c := range cands[1:] {
		if cost := displacementCost(c, seed); cost < bestCost {
			best, bestCost = c, cost
		}
	}
	return best
}

// candidates computes the closed-form solutions for the target, one per
// elbow branch, dropping any branch that violates a joint limit.
func (s *Solver) candidates(target arm.Pose) ([]arm.JointVector, error) {
	r := math.Hypot(target.X, target.Y)
	var t1 float64
	if r > axisEpsilon {
		t1 = atan2Deg(target.Y, target.X)
	}

	// Reduce to the 2-link planar problem at the wrist center.
	cp, sp := cosSinDeg(target.Pitch)
	wr := r - s.d5*cp
	wz := target.Z - s.d1 - s.d5*sp

	dom := (wr*wr + wz*wz - s.l1*s.l1 - s.l2*s.l2) / (2 * s.l1 * s.l2)
	if math.Abs(dom) > 1+domainTolerance {
		return nil, ErrUnreachable
	}
	dom = math.Max(-1, math.Min(1, dom))

	elbow := math.Acos(dom) * 180 / math.Pi
	var out []arm.JointVector
	for _, t3 := range []float64{elbow, -elbow} {
		c3, s3 := cosSinDeg(t3)
		t2 := atan2Deg(wz, wr) - atan2Deg(s.l2*s3, s.l1+s.l2*c3)
		t4 := target.Pitch - t2 - t3
		cand := arm.JointVector{
			NormalizeDeg(t1),
			NormalizeDeg(t2),
			NormalizeDeg(t3),
			NormalizeDeg(t4),
			NormalizeDeg(target.Roll),
		}
		if s.admissible(cand) {
			out = append(out, cand)
		}
	}
	if len(out) == 0 {
		return nil, ErrUnreachable
	}
	return out, nil
}

func (s *Solver) admissible(cand arm.JointVector) bool {
	for i, lim := range s.limits {
		if !lim.Contains(cand[i]) {
			s.log.Debugf("ik: branch dropped, %s at %.1f outside [%.1f, %.1f]",
				arm.AllJoints()[i], cand[i], lim.Min, lim.Max)
			return false
		}
	}
	return true
}
