// Package transport moves frames between the control loop and the arm
// hardware. Two implementations exist: SerialLink speaks the framed wire
// protocol over a USB serial port, FeetechLink drives a bus of Feetech
// servos directly. Both reconnect on their own and never block the
// caller on I/O for longer than a single write.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/wire"
)

// Connection states reported by State.
const (
	StateDisconnected = "disconnected"
	StateProbing      = "probing"
	StateConnected    = "connected"
)

// Transition events for the connection state machine.
const (
	eventProbe  = "probe"
	eventAccept = "accept"
	eventReject = "reject"
	eventDrop   = "drop"
)

var (
	// ErrNotConnected is returned by Send while no device is attached.
	// Callers treat it as routine: targets are simply not delivered
	// until the link comes back.
	ErrNotConnected = errors.New("link not connected")

	// ErrNoPort is returned by Connect when no candidate device
	// answered the identification handshake.
	ErrNoPort = errors.New("no port found")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("link closed")
)

// Link is a reconnecting connection to the arm.
type Link interface {
	// Connect probes for the device and establishes a connection. A
	// failed probe leaves the link disconnected; Maintain retries.
	Connect(ctx context.Context) error

	// Maintain re-probes in the background until ctx is cancelled.
	// Run it on its own goroutine.
	Maintain(ctx context.Context)

	// Send transmits one target frame. The gripper state must be
	// open or close.
	Send(joints arm.JointVector, gripper arm.GripperState) error

	// Reports returns the channel of decoded state reports.
	Reports() <-chan wire.Report

	// State returns the connection state.
	State() string

	Close() error
}

const readerJoinTimeout = time.Second

// queueReport delivers rep without blocking. When the channel is full the
// oldest report is evicted: consumers only ever want fresh state. Each
// link has a single producer goroutine, so the refill cannot race.
func queueReport(ch chan wire.Report, rep wire.Report) {
	select {
	case ch <- rep:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- rep
	}
}

// maintain drives the reconnect loop shared by both link types.
func maintain(ctx context.Context, l Link, interval time.Duration, log logrus.FieldLogger, name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.State() != StateDisconnected {
				continue
			}
			if err := l.Connect(ctx); err != nil && !errors.Is(err, ErrClosed) {
				log.Debugf("%s: reconnect: %v", name, err)
			}
		}
	}
}
