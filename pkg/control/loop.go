// Package control runs the fixed-rate loop that ties the pipeline
// together: feedback reports update the planner, queued intents switch
// modes, and every tick one desired output goes out over the link.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/kinematics"
	"github.com/gwillem/armlink/pkg/planner"
	"github.com/gwillem/armlink/pkg/transport"
)

// State is one snapshot of the control loop, published every tick.
type State struct {
	// Joints is the actual joint state from feedback.
	Joints arm.JointVector
	// Desired is the joint target sent this tick.
	Desired arm.JointVector
	// Gripper is the commanded gripper state.
	Gripper arm.GripperState
	// Pose is the forward kinematics of the actual joints.
	Pose      arm.Pose
	Mode      arm.Mode
	Link      string
	Timestamp time.Time
	Error     error
}

// LoopConfig wires a Loop together.
type LoopConfig struct {
	Config *Config
	Link   transport.Link
	Logger logrus.FieldLogger
}

// Loop owns the planner and drives it at the configured rate. Intents
// reach the planner only through Submit, so all planner access stays on
// the loop goroutine.
type Loop struct {
	cfg    *Config
	link   transport.Link
	log    logrus.FieldLogger
	solver *kinematics.Solver
	plan   *planner.Planner
	hz     int
	period time.Duration

	intents chan arm.ControlIntent

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewLoop creates a control loop around the given link.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Config == nil {
		cfg.Config = DefaultConfig()
	}
	if cfg.Link == nil {
		return nil, fmt.Errorf("loop needs a link")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	solver, err := kinematics.NewSolver(cfg.Config.Arm.Links, cfg.Config.Arm.Limits, log)
	if err != nil {
		return nil, fmt.Errorf("create solver: %w", err)
	}
	plan, err := planner.New(planner.Config{
		Solver:    solver,
		Smoothing: cfg.Config.Motion.Smoothing(),
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("create planner: %w", err)
	}

	hz := cfg.Config.Motion.Hz
	if hz <= 0 {
		hz = 60
	}

	return &Loop{
		cfg:     cfg.Config,
		link:    cfg.Link,
		log:     log,
		solver:  solver,
		plan:    plan,
		hz:      hz,
		period:  time.Second / time.Duration(hz),
		intents: make(chan arm.ControlIntent, 16),
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// Submit queues an intent for the next tick. It never blocks; when the
// queue is full the intent is dropped and logged.
func (l *Loop) Submit(intent arm.ControlIntent) {
	select {
	case l.intents <- intent:
	default:
		l.log.Warnf("loop: intent queue full, dropping %s intent", intent.Mode())
	}
}

// States returns a channel that receives state updates.
func (l *Loop) States() <-chan State {
	return l.stateCh
}

// Logs returns a channel that receives log messages from LogHook.
func (l *Loop) Logs() <-chan string {
	return l.logCh
}

// Hz returns the control frequency.
func (l *Loop) Hz() int {
	return l.hz
}

// LogHook returns a logrus hook that mirrors log entries into the Logs
// channel for the dashboard. Entries are dropped when the channel is
// full.
func (l *Loop) LogHook() logrus.Hook {
	return &channelHook{ch: l.logCh}
}

type channelHook struct {
	ch chan string
}

func (h *channelHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *channelHook) Fire(e *logrus.Entry) error {
	msg := fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
	select {
	case h.ch <- msg:
	default:
	}
	return nil
}

// Start begins the control loop and blocks until ctx is cancelled. The
// link is connected once up front; Maintain re-probes after that, so a
// missing arm at startup is not fatal.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("already running")
	}
	l.running = true
	l.mu.Unlock()

	if err := l.link.Connect(ctx); err != nil {
		l.log.Warnf("loop: initial connect: %v", err)
	}
	go l.link.Maintain(ctx)

	l.log.Infof("control loop started at %d Hz", l.hz)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case <-ticker.C:
			l.step()
		}
	}
}

func (l *Loop) step() {
	l.drainReports()
	l.drainIntents()

	out := l.plan.ComputeDesiredOutput(l.period)

	var sendErr error
	if err := l.link.Send(out.Joints, out.Gripper); err != nil {
		// A disconnected link is routine, the arm keeps reconnecting.
		if !errors.Is(err, transport.ErrNotConnected) {
			l.log.Warnf("loop: send: %v", err)
			sendErr = err
		}
	}

	actual := l.plan.Actual()
	pose, _ := l.solver.SolveFK(actual)

	l.sendState(State{
		Joints:    actual,
		Desired:   out.Joints,
		Gripper:   out.Gripper,
		Pose:      pose,
		Mode:      l.plan.Mode(),
		Link:      l.link.State(),
		Timestamp: time.Now(),
		Error:     sendErr,
	})
}

// drainReports folds every pending feedback report into the planner, in
// arrival order, so the planner always sees the freshest actuals.
func (l *Loop) drainReports() {
	for {
		select {
		case rep := <-l.link.Reports():
			l.plan.UpdateActualState(rep.Joints)
		default:
			return
		}
	}
}

func (l *Loop) drainIntents() {
	for {
		select {
		case intent := <-l.intents:
			if err := l.plan.ProcessIntent(intent); err != nil {
				l.log.Warnf("loop: intent rejected: %v", err)
			}
		default:
			return
		}
	}
}

func (l *Loop) sendState(s State) {
	select {
	case l.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-l.stateCh:
		default:
		}
		l.stateCh <- s
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	if err := l.link.Close(); err != nil {
		l.log.Warnf("loop: close link: %v", err)
	}
	l.log.Info("control loop stopped")
}
