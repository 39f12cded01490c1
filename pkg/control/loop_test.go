package control

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armlink/pkg/arm"
	"github.com/gwillem/armlink/pkg/transport"
	"github.com/gwillem/armlink/pkg/wire"
)

type sentFrame struct {
	joints  arm.JointVector
	gripper arm.GripperState
}

type fakeLink struct {
	reports chan wire.Report

	mu     sync.Mutex
	sent   []sentFrame
	closed bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{reports: make(chan wire.Report, 16)}
}

func (f *fakeLink) Connect(ctx context.Context) error { return nil }
func (f *fakeLink) Maintain(ctx context.Context)      { <-ctx.Done() }
func (f *fakeLink) Reports() <-chan wire.Report       { return f.reports }
func (f *fakeLink) State() string                     { return transport.StateConnected }

func (f *fakeLink) Send(joints arm.JointVector, gripper arm.GripperState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{joints: joints.Clone(), gripper: gripper})
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) lastSent() (sentFrame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentFrame{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestLoop(t *testing.T, link transport.Link) *Loop {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := DefaultConfig()
	cfg.Motion.Hz = 200 // fast ticks keep the tests short
	cfg.Motion.SmoothingMs = 100

	loop, err := NewLoop(LoopConfig{Config: cfg, Link: link, Logger: log})
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	return loop
}

func TestLoopPublishesState(t *testing.T) {
	link := newFakeLink()
	loop := newTestLoop(t, link)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	link.reports <- wire.Report{Joints: arm.JointVector{10, 20, -30, 15, 40}}

	deadline := time.After(time.Second)
	for {
		select {
		case st := <-loop.States():
			if len(st.Joints) == 0 || st.Joints[0] != 10 {
				continue // feedback not folded in yet
			}
			if st.Mode != arm.ModeGripperOnly {
				t.Errorf("mode = %v, want gripper at startup", st.Mode)
			}
			if st.Gripper != arm.GripperOpen {
				t.Errorf("gripper = %v, want open at startup", st.Gripper)
			}
			if st.Link != transport.StateConnected {
				t.Errorf("link state = %q, want connected", st.Link)
			}
			if math.Abs(st.Pose.X-0.305916368) > 1e-6 || math.Abs(st.Pose.Z-0.127177095) > 1e-6 {
				t.Errorf("pose = %+v, want FK of the actuals", st.Pose)
			}
			return
		case <-deadline:
			t.Fatal("feedback never reflected in published state")
		}
	}
}

func TestLoopSendsDesiredOutput(t *testing.T) {
	link := newFakeLink()
	loop := newTestLoop(t, link)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	target := arm.JointVector{10, 20, -30, 15, 40}
	loop.Submit(arm.NewJointTeach(target, arm.GripperClose))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last, ok := link.lastSent(); ok && last.joints[0] == 10 {
			for i := range target {
				if last.joints[i] != target[i] {
					t.Errorf("sent joint %d = %v, want %v", i+1, last.joints[i], target[i])
				}
			}
			if last.gripper != arm.GripperClose {
				t.Errorf("sent gripper = %v, want close", last.gripper)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("teach target never sent")
}

func TestLoopSubmitNeverBlocks(t *testing.T) {
	loop := newTestLoop(t, newFakeLink()) // not started, queue fills up

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			loop.Submit(arm.NewGripperOnly(arm.GripperOpen))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full queue")
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	link := newFakeLink()
	loop := newTestLoop(t, link)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	if !link.isClosed() {
		t.Error("link not closed on shutdown")
	}
}

func TestLogHookFeedsLogs(t *testing.T) {
	loop := newTestLoop(t, newFakeLink())

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(loop.LogHook())
	log.Warn("belt slipping on joint 2")

	select {
	case msg := <-loop.Logs():
		if !strings.Contains(msg, "belt slipping on joint 2") {
			t.Errorf("log = %q", msg)
		}
	default:
		t.Error("no log message delivered")
	}
}
