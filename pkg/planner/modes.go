package planner

import (
	"time"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/trajectory"
)

// activeMode computes the desired joints for each tick. Modes keep only
// the state their own intent carried; switching modes discards it.
type activeMode interface {
	name() arm.Mode
	gripper() arm.GripperState
	step(p *Planner, dt time.Duration) arm.JointVector
}

// teachMode replays recorded joint targets verbatim. Targets are clamped
// to the joint limits when the intent arrives, not per tick.
type teachMode struct {
	target arm.JointVector
	grip   arm.GripperState
}

func (m *teachMode) name() arm.Mode            { return arm.ModeJointTeach }
func (m *teachMode) gripper() arm.GripperState { return m.grip }

func (m *teachMode) step(p *Planner, dt time.Duration) arm.JointVector {
	return m.target.Clone()
}

// taskMode blends from the live actual state toward the solved joint
// target with a quintic profile. A nil target means the pose was
// unreachable and the arm holds its actual position instead.
type taskMode struct {
	target  arm.JointVector
	grip    arm.GripperState
	elapsed time.Duration
}

func (m *taskMode) name() arm.Mode            { return arm.ModeTaskControl }
func (m *taskMode) gripper() arm.GripperState { return m.grip }

func (m *taskMode) step(p *Planner, dt time.Duration) arm.JointVector {
	if m.target == nil {
		return p.actual.Clone()
	}
	m.elapsed += dt

	// Rebuilding from the actual state every tick folds feedback into
	// the blend; the profile still lands exactly on the target once the
	// smoothing window has elapsed.
	at := m.elapsed.Seconds()
	out := make(arm.JointVector, len(m.target))
	for i := range out {
		c, err := trajectory.Coefficients(p.actual[i], m.target[i], p.smoothing.Seconds())
		if err != nil {
			out[i] = m.target[i]
			continue
		}
		out[i] = c.Evaluate(at)
	}
	return out
}

// gripperMode actuates only the gripper and echoes the actual joints so
// the arm holds still.
type gripperMode struct {
	grip arm.GripperState
}

func (m *gripperMode) name() arm.Mode            { return arm.ModeGripperOnly }
func (m *gripperMode) gripper() arm.GripperState { return m.grip }

func (m *gripperMode) step(p *Planner, dt time.Duration) arm.JointVector {
	return p.actual.Clone()
}

// manualMode follows incremental pose nudges. Each intent is solved on
// arrival and the joints pass through unchanged until the next nudge.
type manualMode struct {
	target arm.JointVector
	grip   arm.GripperState
}

func (m *manualMode) name() arm.Mode            { return arm.ModeManual }
func (m *manualMode) gripper() arm.GripperState { return m.grip }

func (m *manualMode) step(p *Planner, dt time.Duration) arm.JointVector {
	return m.target.Clone()
}
