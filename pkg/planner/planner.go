// Package planner turns control intents into per-tick desired outputs.
//
// The planner owns the active control mode. Every intent replaces the
// mode outright, so no stale target can leak from one mode into the
// next; the only state that survives a switch is the last commanded
// gripper state. The planner is not safe for concurrent use: the control
// loop owns it and serializes intents ahead of it.
package planner

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/kinematics"
)

// DefaultSmoothing is the task-control blend window.
const DefaultSmoothing = 500 * time.Millisecond

// Config holds configuration for a Planner.
type Config struct {
	Solver    *kinematics.Solver
	Smoothing time.Duration
	Logger    logrus.FieldLogger
}

// Planner dispatches intents to control modes and computes the desired
// output each tick.
type Planner struct {
	solver    *kinematics.Solver
	smoothing time.Duration
	log       logrus.FieldLogger

	actual      arm.JointVector
	lastGripper arm.GripperState
	mode        activeMode
}

// New creates a planner holding position with an open gripper.
func New(cfg Config) (*Planner, error) {
	if cfg.Solver == nil {
		return nil, fmt.Errorf("planner needs a solver")
	}
	if cfg.Smoothing <= 0 {
		cfg.Smoothing = DefaultSmoothing
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Planner{
		solver:      cfg.Solver,
		smoothing:   cfg.Smoothing,
		log:         log,
		actual:      arm.ZeroJoints(cfg.Solver.DOF()),
		lastGripper: arm.GripperOpen,
		mode:        &gripperMode{grip: arm.GripperOpen},
	}, nil
}

// ProcessIntent replaces the active mode with one built from the intent.
// A failed intent still switches modes where that is safe: an unreachable
// task target degrades to holding position, an unreachable manual nudge
// keeps the previous manual target.
func (p *Planner) ProcessIntent(intent arm.ControlIntent) error {
	switch it := intent.(type) {
	case arm.JointTeachIntent:
		if err := it.Target.CheckLen(p.solver.DOF()); err != nil {
			return fmt.Errorf("teach intent: %w", err)
		}
		target := it.Target.Clone()
		for i, lim := range p.solver.Limits() {
			if !lim.Contains(target[i]) {
				p.log.Debugf("teach: clamping %s from %.1f into [%.1f, %.1f]",
					arm.AllJoints()[i], target[i], lim.Min, lim.Max)
				target[i] = lim.Clamp(target[i])
			}
		}
		p.mode = &teachMode{target: target, grip: p.resolveGripper(it.Gripper)}

	case arm.TaskControlIntent:
		grip := p.resolveGripper(it.Gripper)
		target, err := p.solver.SolveIK(it.Target, p.actual)
		if err != nil {
			p.mode = &taskMode{grip: grip}
			return fmt.Errorf("task intent: %w", err)
		}
		p.mode = &taskMode{target: target, grip: grip}

	case arm.GripperOnlyIntent:
		p.mode = &gripperMode{grip: p.resolveGripper(it.Gripper)}

	case arm.ManualIntent:
		grip := p.resolveGripper(it.Gripper)
		target, err := p.solver.TrackIK(it.Target, p.actual)
		if err != nil {
			if m, ok := p.mode.(*manualMode); ok {
				m.grip = grip
			} else {
				p.mode = &manualMode{target: p.actual.Clone(), grip: grip}
			}
			return fmt.Errorf("manual intent: %w", err)
		}
		p.mode = &manualMode{target: target, grip: grip}

	default:
		return fmt.Errorf("unknown intent %T", intent)
	}

	p.log.Debugf("planner: %s intent accepted (age %s)",
		intent.Mode(), time.Since(intent.Time()).Round(time.Millisecond))
	return nil
}

// UpdateActualState folds a feedback report into the planner. Reports
// with the wrong joint count are dropped.
func (p *Planner) UpdateActualState(joints arm.JointVector) error {
	if err := joints.CheckLen(p.solver.DOF()); err != nil {
		p.log.Warnf("planner: feedback dropped: %v", err)
		return fmt.Errorf("feedback: %w", err)
	}
	copy(p.actual, joints)
	return nil
}

// ComputeDesiredOutput advances the active mode by dt and returns the
// output to transmit. The gripper state is never undetermined.
func (p *Planner) ComputeDesiredOutput(dt time.Duration) arm.DesiredOutput {
	return arm.DesiredOutput{
		Joints:  p.mode.step(p, dt),
		Gripper: p.mode.gripper(),
	}
}

// Actual returns a copy of the last known actual joint state.
func (p *Planner) Actual() arm.JointVector {
	return p.actual.Clone()
}

// Mode returns the active control mode.
func (p *Planner) Mode() arm.Mode {
	return p.mode.name()
}

// resolveGripper turns an undetermined request into the last commanded
// state and records a determined one for the next resolution.
func (p *Planner) resolveGripper(g arm.GripperState) arm.GripperState {
	if g == arm.GripperUndetermined {
		return p.lastGripper
	}
	p.lastGripper = g
	return g
}
