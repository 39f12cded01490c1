package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/wire"
)

const (
	readPoll      = 50 * time.Millisecond
	maxFrameBytes = 4096
)

// SerialConfig configures a SerialLink.
type SerialConfig struct {
	// Port is the device path. Empty means probe every candidate port.
	Port     string
	BaudRate int

	ReconnectInterval time.Duration
	ReceiveTimeout    time.Duration
	HandshakeTimeout  time.Duration
	HandshakeCommand  string
	HandshakeToken    string

	// QueueSize bounds the decoded report channel.
	QueueSize int

	Codec             wire.Codec
	GripperOpenAngle  float64
	GripperCloseAngle float64

	Logger logrus.FieldLogger
}

// SerialLink connects to the arm controller over a serial port, verifies
// it with the identification handshake and keeps a reader goroutine
// assembling frames from the byte stream.
type SerialLink struct {
	cfg SerialConfig
	log logrus.FieldLogger

	machine *fsm.FSM
	reports chan wire.Report

	mu     sync.Mutex
	port   serial.Port
	stop   chan struct{}
	done   chan struct{}
	closed bool

	// Swapped out in tests.
	openPort  func(name string, mode *serial.Mode) (serial.Port, error)
	listPorts func() ([]string, error)
}

// NewSerialLink creates a link in the disconnected state. Call Connect to
// probe for the device.
func NewSerialLink(cfg SerialConfig) *SerialLink {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 500 * time.Millisecond
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = time.Second
	}
	if cfg.HandshakeCommand == "" {
		cfg.HandshakeCommand = wire.DefaultHandshakeCommand
	}
	if cfg.HandshakeToken == "" {
		cfg.HandshakeToken = wire.DefaultHandshakeToken
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Codec.DOF == 0 {
		cfg.Codec = wire.NewCodec(len(arm.DefaultLinks()))
	}
	if cfg.GripperOpenAngle == 0 && cfg.GripperCloseAngle == 0 {
		cfg.GripperOpenAngle = arm.DefaultGripperOpenAngle
		cfg.GripperCloseAngle = arm.DefaultGripperCloseAngle
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &SerialLink{
		cfg:       cfg,
		log:       log,
		machine:   newLinkFSM(log, "serial link"),
		reports:   make(chan wire.Report, cfg.QueueSize),
		openPort:  serial.Open,
		listPorts: serial.GetPortsList,
	}
}

func newLinkFSM(log logrus.FieldLogger, name string) *fsm.FSM {
	return fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventProbe, Src: []string{StateDisconnected}, Dst: StateProbing},
			{Name: eventAccept, Src: []string{StateProbing}, Dst: StateConnected},
			{Name: eventReject, Src: []string{StateProbing}, Dst: StateDisconnected},
			{Name: eventDrop, Src: []string{StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				log.Debugf("%s: %s -> %s (%s)", name, e.Src, e.Dst, e.Event)
			},
		},
	)
}

// Connect probes the configured port, or every candidate port, and keeps
// the first one that answers the handshake with the expected token.
func (l *SerialLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.machine.Current() != StateDisconnected {
		l.mu.Unlock()
		return nil
	}
	l.machine.Event(ctx, eventProbe)
	l.mu.Unlock()

	port, name, err := l.probe(ctx)
	if err != nil {
		l.mu.Lock()
		l.machine.Event(ctx, eventReject)
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		port.Close()
		return ErrClosed
	}
	l.port = port
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.readLoop(port, l.stop, l.done)
	l.machine.Event(ctx, eventAccept)
	l.mu.Unlock()

	l.log.Infof("serial link: connected to %s", name)
	return nil
}

func (l *SerialLink) probe(ctx context.Context) (serial.Port, string, error) {
	names, err := l.candidatePorts()
	if err != nil {
		return nil, "", fmt.Errorf("list ports: %w", err)
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		port, err := l.probePort(name)
		if err != nil {
			l.log.Debugf("serial link: %s: %v", name, err)
			continue
		}
		return port, name, nil
	}
	return nil, "", ErrNoPort
}

func (l *SerialLink) candidatePorts() ([]string, error) {
	if l.cfg.Port != "" {
		return []string{l.cfg.Port}, nil
	}
	ports, err := l.listPorts()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range ports {
		// Bluetooth ports on macOS hang on open
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *SerialLink) probePort(name string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: l.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := l.openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	port.ResetInputBuffer()
	if _, err := port.Write([]byte(l.cfg.HandshakeCommand)); err != nil {
		port.Close()
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	reply, err := readUntilMarker(port, l.cfg.HandshakeTimeout)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if !strings.Contains(reply, l.cfg.HandshakeToken) {
		port.Close()
		return nil, fmt.Errorf("handshake reply %q lacks token %q", reply, l.cfg.HandshakeToken)
	}
	return port, nil
}

// readUntilMarker accumulates bytes until an end marker or the deadline.
// Handshake replies carry no checksum, the token check is enough.
func readUntilMarker(port serial.Port, timeout time.Duration) (string, error) {
	port.SetReadTimeout(readPoll)
	var buf []byte
	chunk := make([]byte, 64)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := port.Read(chunk)
		if err != nil {
			return "", err
		}
		buf = append(buf, chunk[:n]...)
		if bytes.IndexByte(buf, wire.EndMarker) >= 0 {
			return string(buf), nil
		}
	}
	return "", fmt.Errorf("no reply within %s", timeout)
}

// Maintain keeps probing for the device until ctx is cancelled.
func (l *SerialLink) Maintain(ctx context.Context) {
	maintain(ctx, l, l.cfg.ReconnectInterval, l.log, "serial link")
}

// readLoop assembles frames from the port until stop closes or the port
// dies. Each complete frame is decoded and queued; decode failures are
// dropped here so the control loop never sees a bad frame.
func (l *SerialLink) readLoop(port serial.Port, stop, done chan struct{}) {
	defer close(done)

	port.SetReadTimeout(readPoll)
	var buf []byte
	var lastData time.Time
	chunk := make([]byte, 256)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(chunk)
		if err != nil {
			select {
			case <-stop:
			default:
				l.log.Warnf("serial link: read failed: %v", err)
				go l.dropPort(port)
			}
			return
		}
		if n == 0 {
			// Poll timeout. A partial frame that stalls past the
			// receive timeout is discarded so it cannot linger forever.
			if len(buf) > 0 && time.Since(lastData) > l.cfg.ReceiveTimeout {
				l.log.Debugf("serial link: discarding %d stale bytes", len(buf))
				buf = buf[:0]
			}
			continue
		}

		lastData = time.Now()
		buf = append(buf, chunk[:n]...)
		buf = l.extractFrames(buf)
		if len(buf) > maxFrameBytes {
			l.log.Warnf("serial link: no frame in %d bytes, discarding", len(buf))
			buf = buf[:0]
		}
	}
}

func (l *SerialLink) extractFrames(buf []byte) []byte {
	for {
		end := bytes.IndexByte(buf, wire.EndMarker)
		if end < 0 {
			return buf
		}
		frame := buf[:end+1]
		buf = buf[end+1:]

		rep, err := l.cfg.Codec.Decode(frame)
		if err != nil {
			l.log.Debugf("serial link: dropping frame: %v", err)
			continue
		}
		queueReport(l.reports, rep)
	}
}

// Send encodes and transmits one target frame. A write failure drops the
// connection so Maintain re-probes on its next tick.
func (l *SerialLink) Send(joints arm.JointVector, gripper arm.GripperState) error {
	angle, err := l.gripperAngle(gripper)
	if err != nil {
		return err
	}
	frame, err := l.cfg.Codec.Encode(joints, angle)
	if err != nil {
		return err
	}

	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	if _, err := port.Write(frame); err != nil {
		l.log.Warnf("serial link: write failed: %v", err)
		l.dropPort(port)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (l *SerialLink) gripperAngle(g arm.GripperState) (float64, error) {
	switch g {
	case arm.GripperOpen:
		return l.cfg.GripperOpenAngle, nil
	case arm.GripperClose:
		return l.cfg.GripperCloseAngle, nil
	}
	return 0, fmt.Errorf("cannot send undetermined gripper state")
}

// Reports returns the channel of decoded state reports.
func (l *SerialLink) Reports() <-chan wire.Report {
	return l.reports
}

// State returns the connection state.
func (l *SerialLink) State() string {
	return l.machine.Current()
}

// Close tears down the connection. The link cannot be reused afterwards.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.teardownLocked()
	return nil
}

// dropPort tears down the connection if port is still current, so a
// replacement connection established in the meantime is left alone.
func (l *SerialLink) dropPort(port serial.Port) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != port {
		return
	}
	l.teardownLocked()
}

func (l *SerialLink) teardownLocked() {
	if l.port == nil {
		return
	}
	close(l.stop)
	l.port.Close()
	select {
	case <-l.done:
	case <-time.After(readerJoinTimeout):
		l.log.Warnf("serial link: reader did not exit within %s", readerJoinTimeout)
	}
	l.port = nil
	if l.machine.Current() == StateConnected {
		l.machine.Event(context.Background(), eventDrop)
	}
}
