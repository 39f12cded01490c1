// Package armlink drives a 5-DOF robot arm over a serial line.
//
// The control loop turns high-level intents (hold these joints, reach
// this pose, open the gripper) into smooth joint trajectories and keeps
// them flowing to the arm at a fixed rate, folding position feedback
// back into the plan every tick.
//
// # Installation
//
//	go install github.com/gwillem/armlink/cmd/armlink@latest
//
// # Usage
//
// First, run setup to detect the arm and write a configuration file:
//
//	armlink setup
//
// Then start the control loop with the live dashboard:
//
//	armlink run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armlink: CLI with setup, run and info commands
//   - pkg/arm: Joint vectors, poses, gripper states and control intents
//   - pkg/kinematics: Analytic forward and inverse kinematics
//   - pkg/trajectory: Quintic motion profiles
//   - pkg/planner: Control-mode state machine and per-tick blending
//   - pkg/wire: Framed, checksummed packet format
//   - pkg/transport: Serial and direct-servo links with reconnection
//   - pkg/control: Configuration and the feedback control loop
package armlink
