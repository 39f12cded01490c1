// Package kinematics implements analytic forward and inverse kinematics
// for a 5-DOF arm with a yawing base, a planar shoulder/elbow pair and a
// pitch/roll wrist.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
)

// axisEpsilon is the radial distance below which a point counts as lying
// on the base axis, where yaw stops being observable from position alone.
const axisEpsilon = 1e-6

// Solver resolves joint angles and end-effector poses against one fixed
// link-parameter table. It is safe to share between goroutines.
type Solver struct {
	links  []arm.LinkParameter
	limits []arm.JointLimit
	log    logrus.FieldLogger

	// geometry lifted out of the link table for the closed-form solve
	d1, l1, l2, d5 float64
}

// NewSolver builds a solver for the given link table and travel limits.
// The closed-form inverse solve is specific to the 5-joint chain layout,
// so the table must have exactly five entries.
func NewSolver(links []arm.LinkParameter, limits []arm.JointLimit, log logrus.FieldLogger) (*Solver, error) {
	if len(links) != 5 {
		return nil, fmt.Errorf("link table has %d entries, want 5", len(links))
	}
	if len(limits) != len(links) {
		return nil, fmt.Errorf("limit table has %d entries, want %d", len(limits), len(links))
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Solver{
		links:  append([]arm.LinkParameter(nil), links...),
		limits: append([]arm.JointLimit(nil), limits...),
		log:    log,
		d1:     links[0].D,
		l1:     links[1].A,
		l2:     links[2].A,
		d5:     links[4].D,
	}
	if s.l1 <= 0 || s.l2 <= 0 {
		return nil, errors.New("arm segment lengths must be positive")
	}
	return s, nil
}

// DOF returns the number of actuated joints.
func (s *Solver) DOF() int { return len(s.links) }

// Limits returns a copy of the joint travel limits.
func (s *Solver) Limits() []arm.JointLimit {
	return append([]arm.JointLimit(nil), s.limits...)
}

// SolveFK composes the per-joint transforms and returns the end-effector
// pose for the given joint angles.
func (s *Solver) SolveFK(joints arm.JointVector) (arm.Pose, error) {
	if err := joints.CheckLen(len(s.links)); err != nil {
		return arm.Pose{}, fmt.Errorf("forward kinematics: %w", err)
	}
	t := identity()
	for i, link := range s.links {
		t = t.mul(dhMatrix(joints[i]+link.Offset, link))
	}
	return s.extractPose(t), nil
}

// extractPose reads position and yaw/pitch/roll out of the tool transform.
// Yaw comes from the wrist center so the tool offset cannot skew it; when
// the wrist center sits on the base axis the tool direction decides, and a
// fully vertical arm reports yaw 0 with the base rotation showing up as
// roll instead.
func (s *Solver) extractPose(t mat4) arm.Pose {
	px, py, pz := t[0][3], t[1][3], t[2][3]
	ax, ay, az := t[0][2], t[1][2], t[2][2] // tool approach axis
	xx, xy, xz := t[0][0], t[1][0], t[2][0] // tool x axis, carries roll

	wcx := px - s.d5*ax
	wcy := py - s.d5*ay

	var yaw float64
	switch {
	case math.Hypot(wcx, wcy) > axisEpsilon:
		yaw = atan2Deg(wcy, wcx)
	case math.Hypot(ax, ay) > axisEpsilon:
		yaw = atan2Deg(ay, ax)
	}

	cy, sy := cosSinDeg(yaw)
	pitch := atan2Deg(az, ax*cy+ay*sy)

	cp, sp := cosSinDeg(pitch)
	mx, my, mz := -sp*cy, -sp*sy, cp // radial direction lifted by pitch
	hx, hy := -sy, cy                // horizontal direction orthogonal to it
	roll := atan2Deg(-(xx*hx + xy*hy), xx*mx+xy*my+xz*mz)

	return arm.Pose{X: px, Y: py, Z: pz, Yaw: yaw, Pitch: pitch, Roll: roll}
}

type mat4 [4][4]float64

func identity() mat4 {
	return mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

func (m mat4) mul(o mat4) mat4 {
	var r mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i][k] * o[k][j]
			}
			r[i][j] = sum
		}
	}
	return r
}

// dhMatrix builds one joint's homogeneous transform from its live angle
// (link offset already applied) and its link parameters.
func dhMatrix(thetaDeg float64, link arm.LinkParameter) mat4 {
	ct, st := cosSinDeg(thetaDeg)
	ca, sa := cosSinDeg(link.Alpha)
	return mat4{
		{ct, -st * ca, st * sa, link.A * ct},
		{st, ct * ca, -ct * sa, link.A * st},
		{0, sa, ca, link.D},
		{0, 0, 0, 1},
	}
}
