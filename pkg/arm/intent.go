package arm

import "time"

// Mode is the active control mode of the motion planner.
type Mode int

const (
	ModeJointTeach Mode = iota
	ModeTaskControl
	ModeGripperOnly
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeJointTeach:
		return "teach"
	case ModeTaskControl:
		return "task"
	case ModeGripperOnly:
		return "gripper"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ControlIntent is one operator command. Each variant selects the control
// mode named by its tag and carries only that mode's target data, plus a
// creation timestamp for traceability. Intents are immutable once built.
type ControlIntent interface {
	Mode() Mode
	Time() time.Time
}

// JointTeachIntent drives the joints to explicit angles.
type JointTeachIntent struct {
	Target  JointVector
	Gripper GripperState
	At      time.Time
}

// NewJointTeach builds a joint-teach intent stamped with the current time.
func NewJointTeach(target JointVector, gripper GripperState) JointTeachIntent {
	return JointTeachIntent{Target: target.Clone(), Gripper: gripper, At: time.Now()}
}

func (i JointTeachIntent) Mode() Mode      { return ModeJointTeach }
func (i JointTeachIntent) Time() time.Time { return i.At }

// TaskControlIntent moves the end effector to a pose with blended motion.
type TaskControlIntent struct {
	Target  Pose
	Gripper GripperState
	At      time.Time
}

func NewTaskControl(target Pose, gripper GripperState) TaskControlIntent {
	return TaskControlIntent{Target: target, Gripper: gripper, At: time.Now()}
}

func (i TaskControlIntent) Mode() Mode      { return ModeTaskControl }
func (i TaskControlIntent) Time() time.Time { return i.At }

// GripperOnlyIntent actuates the gripper while the joints hold position.
type GripperOnlyIntent struct {
	Gripper GripperState
	At      time.Time
}

func NewGripperOnly(gripper GripperState) GripperOnlyIntent {
	return GripperOnlyIntent{Gripper: gripper, At: time.Now()}
}

func (i GripperOnlyIntent) Mode() Mode      { return ModeGripperOnly }
func (i GripperOnlyIntent) Time() time.Time { return i.At }

// ManualIntent tracks a pose directly, without blending. Targets are
// expected to arrive as a stream of small increments.
type ManualIntent struct {
	Target  Pose
	Gripper GripperState
	At      time.Time
}

func NewManual(target Pose, gripper GripperState) ManualIntent {
	return ManualIntent{Target: target, Gripper: gripper, At: time.Now()}
}

func (i ManualIntent) Mode() Mode      { return ModeManual }
func (i ManualIntent) Time() time.Time { return i.At }
