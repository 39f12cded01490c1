// Package arm defines the shared data model for the armlink motion pipeline:
// joint vectors, poses, gripper states, link geometry and control intents.
package arm

import (
	"errors"
	"fmt"
)

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the 5-DOF arm, base to wrist.
const (
	BaseYaw    JointName = "base_yaw"
	Shoulder   JointName = "shoulder"
	Elbow      JointName = "elbow"
	WristPitch JointName = "wrist_pitch"
	WristRoll  JointName = "wrist_roll"
)

// AllJoints returns all joint names in order (matching wire fields J1-J5).
func AllJoints() []JointName {
	return []JointName{BaseYaw, Shoulder, Elbow, WristPitch, WristRoll}
}

// ErrJointCount is returned when a joint vector does not match the arm's
// degree-of-freedom count.
var ErrJointCount = errors.New("joint count mismatch")

// JointVector is an ordered set of joint angles in degrees, one per joint.
type JointVector []float64

// ZeroJoints returns a joint vector of n zeroed angles.
func ZeroJoints(n int) JointVector {
	return make(JointVector, n)
}

// Clone returns an independent copy of the vector.
func (v JointVector) Clone() JointVector {
	out := make(JointVector, len(v))
	copy(out, v)
	return out
}

// CheckLen verifies the vector holds exactly n angles.
func (v JointVector) CheckLen(n int) error {
	if len(v) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrJointCount, len(v), n)
	}
	return nil
}

// Pose is an end-effector position in meters with a yaw/pitch/roll
// orientation in degrees. Yaw rotates about the base axis, pitch tilts the
// tool against the horizontal plane and roll spins it about its own axis.
type Pose struct {
	X, Y, Z          float64
	Yaw, Pitch, Roll float64
}

// DesiredOutput is one tick's worth of downstream command: joint targets
// plus a resolved gripper state.
type DesiredOutput struct {
	Joints  JointVector
	Gripper GripperState
}
