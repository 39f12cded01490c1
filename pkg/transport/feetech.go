package transport

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/wire"
)

const (
	busIOTimeout    = 100 * time.Millisecond
	maxPollFailures = 5
)

// ServoCalibration maps one servo's tick range onto a joint's degree
// range.
type ServoCalibration struct {
	ID      int     `json:"id"`
	TickMin int     `json:"tick_min"`
	TickMax int     `json:"tick_max"`
	DegMin  float64 `json:"deg_min"`
	DegMax  float64 `json:"deg_max"`
}

// Degrees converts a raw servo position to joint degrees.
func (c ServoCalibration) Degrees(raw int) float64 {
	span := float64(c.TickMax - c.TickMin)
	if span == 0 {
		return c.DegMin
	}
	return c.DegMin + float64(raw-c.TickMin)/span*(c.DegMax-c.DegMin)
}

// Ticks converts joint degrees to a raw servo position, clamped to the
// calibrated range.
func (c ServoCalibration) Ticks(deg float64) int {
	span := c.DegMax - c.DegMin
	if span == 0 {
		return c.TickMin
	}
	t := c.TickMin + int(math.Round((deg-c.DegMin)/span*float64(c.TickMax-c.TickMin)))
	lo, hi := c.TickMin, c.TickMax
	if lo > hi {
		lo, hi = hi, lo
	}
	if t < lo {
		t = lo
	}
	if t > hi {
		t = hi
	}
	return t
}

// DefaultFeetechCalibration covers the full STS3215 tick range for n
// joints with servo IDs 1..n. Real arms narrow these ranges during setup.
func DefaultFeetechCalibration(n int) []ServoCalibration {
	cals := make([]ServoCalibration, n)
	for i := range cals {
		cals[i] = ServoCalibration{ID: i + 1, TickMin: 0, TickMax: 4095, DegMin: -180, DegMax: 180}
	}
	return cals
}

// DefaultGripperServo drives the gripper jaw across a quarter turn above
// servo center.
func DefaultGripperServo(id int) ServoCalibration {
	return ServoCalibration{ID: id, TickMin: 2048, TickMax: 3072, DegMin: 0, DegMax: 90}
}

// FeetechConfig configures a FeetechLink.
type FeetechConfig struct {
	Port     string
	BaudRate int

	// Joints lists one calibration per joint, in joint order.
	Joints  []ServoCalibration
	Gripper ServoCalibration

	PollInterval      time.Duration
	ReconnectInterval time.Duration
	QueueSize         int

	GripperOpenAngle  float64
	GripperCloseAngle float64
	GripperOpenMin    float64
	GripperCloseMax   float64

	Logger logrus.FieldLogger
}

// FeetechLink drives a bus of Feetech servos directly, bypassing the
// framed wire protocol. Joint targets become sync writes and a background
// poller turns sync reads into the same reports a serial arm would send.
type FeetechLink struct {
	cfg FeetechConfig
	log logrus.FieldLogger

	machine *fsm.FSM
	reports chan wire.Report

	mu     sync.Mutex
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewFeetechLink creates a link in the disconnected state.
func NewFeetechLink(cfg FeetechConfig) *FeetechLink {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 1_000_000
	}
	if len(cfg.Joints) == 0 {
		cfg.Joints = DefaultFeetechCalibration(len(arm.DefaultLinks()))
	}
	if cfg.Gripper.ID == 0 {
		cfg.Gripper = DefaultGripperServo(len(cfg.Joints) + 1)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.GripperOpenAngle == 0 && cfg.GripperCloseAngle == 0 {
		cfg.GripperOpenAngle = arm.DefaultGripperOpenAngle
		cfg.GripperCloseAngle = arm.DefaultGripperCloseAngle
	}
	if cfg.GripperOpenMin == 0 && cfg.GripperCloseMax == 0 {
		cfg.GripperOpenMin = arm.DefaultGripperOpenMin
		cfg.GripperCloseMax = arm.DefaultGripperCloseMax
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &FeetechLink{
		cfg:     cfg,
		log:     log,
		machine: newLinkFSM(log, "feetech link"),
		reports: make(chan wire.Report, cfg.QueueSize),
	}
}

// Connect opens the bus, verifies every calibrated servo answers a scan
// and enables torque.
func (f *FeetechLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.machine.Current() != StateDisconnected {
		f.mu.Unlock()
		return nil
	}
	f.machine.Event(ctx, eventProbe)
	f.mu.Unlock()

	bus, group, err := f.attach(ctx)
	if err != nil {
		f.mu.Lock()
		f.machine.Event(ctx, eventReject)
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		bus.Close()
		return ErrClosed
	}
	f.bus = bus
	f.group = group
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.pollLoop(group, f.stop, f.done)
	f.machine.Event(ctx, eventAccept)
	f.mu.Unlock()

	f.log.Infof("feetech link: connected to %s", f.cfg.Port)
	return nil
}

func (f *FeetechLink) attach(ctx context.Context) (*feetech.Bus, *feetech.ServoGroup, error) {
	if f.cfg.Port == "" {
		return nil, nil, ErrNoPort
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     f.cfg.Port,
		BaudRate: f.cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  busIOTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open bus: %w", err)
	}

	ids := f.servoIDs()
	lo, hi := ids[0], ids[0]
	for _, id := range ids {
		if id < lo {
			lo = id
		}
		if id > hi {
			hi = id
		}
	}
	found, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("scan bus: %w", err)
	}
	present := make(map[int]bool, len(found))
	for _, s := range found {
		present[s.ID] = true
	}
	for _, id := range ids {
		if !present[id] {
			bus.Close()
			return nil, nil, fmt.Errorf("servo %d not found on %s", id, f.cfg.Port)
		}
	}

	group := feetech.NewServoGroupByIDs(bus, ids...)
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("enable torque: %w", err)
	}
	return bus, group, nil
}

func (f *FeetechLink) servoIDs() []int {
	ids := make([]int, 0, len(f.cfg.Joints)+1)
	for _, cal := range f.cfg.Joints {
		ids = append(ids, cal.ID)
	}
	return append(ids, f.cfg.Gripper.ID)
}

// Maintain keeps probing for the bus until ctx is cancelled.
func (f *FeetechLink) Maintain(ctx context.Context) {
	maintain(ctx, f, f.cfg.ReconnectInterval, f.log, "feetech link")
}

// pollLoop turns sync reads into state reports. The bus is dropped after
// enough consecutive failures, single misses are routine on a shared
// half-duplex wire.
func (f *FeetechLink) pollLoop(group *feetech.ServoGroup, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), busIOTimeout)
			raw, err := group.Positions(ctx)
			cancel()
			if err != nil {
				failures++
				f.log.Warnf("feetech link: read positions: %v", err)
				if failures >= maxPollFailures {
					go f.dropGroup(group)
					return
				}
				continue
			}
			failures = 0
			if rep, ok := f.buildReport(raw); ok {
				queueReport(f.reports, rep)
			}
		}
	}
}

func (f *FeetechLink) buildReport(raw map[int]int) (wire.Report, bool) {
	joints := make(arm.JointVector, len(f.cfg.Joints))
	for i, cal := range f.cfg.Joints {
		ticks, ok := raw[cal.ID]
		if !ok {
			return wire.Report{}, false
		}
		joints[i] = cal.Degrees(ticks)
	}
	gripper := arm.GripperUndetermined
	if ticks, ok := raw[f.cfg.Gripper.ID]; ok {
		angle := f.cfg.Gripper.Degrees(ticks)
		gripper = arm.GripperFromAngle(angle, f.cfg.GripperOpenMin, f.cfg.GripperCloseMax)
	}
	return wire.Report{Joints: joints, Gripper: gripper}, true
}

// Send converts joint targets to servo ticks and sync-writes them.
func (f *FeetechLink) Send(joints arm.JointVector, gripper arm.GripperState) error {
	if err := joints.CheckLen(len(f.cfg.Joints)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	var gripDeg float64
	switch gripper {
	case arm.GripperOpen:
		gripDeg = f.cfg.GripperOpenAngle
	case arm.GripperClose:
		gripDeg = f.cfg.GripperCloseAngle
	default:
		return fmt.Errorf("cannot send undetermined gripper state")
	}

	f.mu.Lock()
	group := f.group
	f.mu.Unlock()
	if group == nil {
		return ErrNotConnected
	}

	targets := make(feetech.PositionMap, len(f.cfg.Joints)+1)
	for i, cal := range f.cfg.Joints {
		targets[cal.ID] = cal.Ticks(joints[i])
	}
	targets[f.cfg.Gripper.ID] = f.cfg.Gripper.Ticks(gripDeg)

	ctx, cancel := context.WithTimeout(context.Background(), busIOTimeout)
	defer cancel()
	if err := group.SetPositions(ctx, targets); err != nil {
		f.log.Warnf("feetech link: write positions: %v", err)
		f.dropGroup(group)
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Reports returns the channel of state reports built from servo reads.
func (f *FeetechLink) Reports() <-chan wire.Report {
	return f.reports
}

// State returns the connection state.
func (f *FeetechLink) State() string {
	return f.machine.Current()
}

// Close disables torque and releases the bus.
func (f *FeetechLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.teardownLocked()
	return nil
}

func (f *FeetechLink) dropGroup(group *feetech.ServoGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.group != group {
		return
	}
	f.teardownLocked()
}

func (f *FeetechLink) teardownLocked() {
	if f.bus == nil {
		return
	}
	close(f.stop)
	select {
	case <-f.done:
	case <-time.After(readerJoinTimeout):
		f.log.Warnf("feetech link: poller did not exit within %s", readerJoinTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), busIOTimeout)
	f.group.DisableAll(ctx)
	cancel()
	f.bus.Close()

	f.bus = nil
	f.group = nil
	if f.machine.Current() == StateConnected {
		f.machine.Event(context.Background(), eventDrop)
	}
}
