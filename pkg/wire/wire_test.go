package wire

import (
	"errors"
	"testing"

	"github.com/gwillem/armlink/pkg/arm"
)

func TestCRC8Vectors(t *testing.T) {
	tests := []struct {
		in   string
		want byte
	}{
		{"", 0x00},
		{"A", 0x0C},
		{"123456789", 0xA2},
		{"J1:12.3;J2:-4.0;J3:0.0;J4:90.0;J5:0.0;G:90.0;", 0x37},
		{"ACTUAL:J1:10.0;J2:20.0;J3:30.0;J4:40.0;J5:50.0;", 0x0D},
		{"ACTUAL:J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;", 0xFB},
	}

	for _, tt := range tests {
		if got := CRC8([]byte(tt.in)); got != tt.want {
			t.Errorf("CRC8(%q) = %02X, want %02X", tt.in, got, tt.want)
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	c := NewCodec(5)

	got, err := c.Encode(arm.JointVector{12.3, -4.0, 0, 90, 0}, 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "$J1:12.3;J2:-4.0;J3:0.0;J4:90.0;J5:0.0;G:90.0;CRC:37#"
	if string(got) != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}

	got, err = c.Encode(arm.ZeroJoints(5), 90)
	if err != nil {
		t.Fatalf("encode zeros: %v", err)
	}
	want = "$J1:0.0;J2:0.0;J3:0.0;J4:0.0;J5:0.0;G:90.0;CRC:22#"
	if string(got) != want {
		t.Errorf("Encode zeros = %s, want %s", got, want)
	}

	if _, err := c.Encode(arm.JointVector{1, 2}, 0); !errors.Is(err, arm.ErrJointCount) {
		t.Errorf("short vector: got %v, want ErrJointCount", err)
	}
}

func TestDecodeActualReport(t *testing.T) {
	c := NewCodec(5)

	rep, err := c.Decode([]byte("$ACTUAL:J1:10.0;J2:20.0;J3:30.0;J4:40.0;J5:50.0;CRC:0D#"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := arm.JointVector{10, 20, 30, 40, 50}
	for i := range want {
		if rep.Joints[i] != want[i] {
			t.Errorf("joint %d = %v, want %v", i+1, rep.Joints[i], want[i])
		}
	}
	if rep.Gripper != arm.GripperUndetermined {
		t.Errorf("frame without G field: gripper = %v, want undetermined", rep.Gripper)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	c := NewCodec(5)

	_, err := c.Decode([]byte("$ACTUAL:J1:10.0;J2:20.0;J3:30.0;J4:40.0;J5:50.0;CRC:4F#"))
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("tampered checksum: got %v, want ErrChecksum", err)
	}
}

func TestDecodeGripperField(t *testing.T) {
	c := NewCodec(5)

	tests := []struct {
		frame string
		want  arm.GripperState
	}{
		{"$J1:0.0;J2:0.0;J3:0.0;J4:0.0;J5:0.0;G:90.0;CRC:22#", arm.GripperOpen},
		{"$J1:10.0;J2:20.0;J3:30.0;J4:40.0;J5:50.0;G:0.0;CRC:1C#", arm.GripperClose},
		{"$ACTUAL:J1:10.0;J2:20.0;J3:30.0;J4:40.0;J5:50.0;G:45.0;CRC:FD#", arm.GripperUndetermined},
	}

	for _, tt := range tests {
		rep, err := c.Decode([]byte(tt.frame))
		if err != nil {
			t.Fatalf("decode %s: %v", tt.frame, err)
		}
		if rep.Gripper != tt.want {
			t.Errorf("decode %s: gripper = %v, want %v", tt.frame, rep.Gripper, tt.want)
		}
	}
}

func TestDecodeResync(t *testing.T) {
	c := NewCodec(5)

	// Tail of a truncated frame before the marker must not poison the
	// complete frame that follows.
	rep, err := c.Decode([]byte("40.0;J5:50.0;CR$ACTUAL:J1:1.5;J2:-2.5;J3:0.0;J4:10.0;J5:-0.5;CRC:3D#"))
	if err != nil {
		t.Fatalf("decode with stale prefix: %v", err)
	}
	if rep.Joints[1] != -2.5 {
		t.Errorf("joint 2 = %v, want -2.5", rep.Joints[1])
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	c := NewCodec(5)

	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"no start marker", "ACTUAL:J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:FB#", ErrFraming},
		{"no end marker", "$ACTUAL:J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:FB", ErrFraming},
		{"no checksum field", "$J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;#", ErrFieldCount},
		{"too few fields", "$J1:1.0;J2:2.0;CRC:00#", ErrFieldCount},
		{"too many fields", "$J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;G:1.0;X:2.0;CRC:00#", ErrFieldCount},
		{"labels out of order", "$J2:1.0;J1:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:00#", ErrFieldFormat},
		{"non-numeric joint", "$J1:abc;J2:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:00#", ErrFieldFormat},
		{"non-numeric gripper", "$J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;G:open;CRC:00#", ErrFieldFormat},
		{"missing field separator", "$J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0CRC:00#", ErrFieldFormat},
		{"checksum not hex", "$ACTUAL:J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:ZZ#", ErrFieldFormat},
		{"checksum too long", "$ACTUAL:J1:1.0;J2:2.0;J3:3.0;J4:4.0;J5:5.0;CRC:FB0#", ErrFieldFormat},
	}

	for _, tt := range tests {
		if _, err := c.Decode([]byte(tt.frame)); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(5)

	joints := arm.JointVector{12.3, -4.0, 0, 90, 0}
	frame, err := c.Encode(joints, arm.DefaultGripperOpenAngle)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rep, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("decode own frame: %v", err)
	}
	for i := range joints {
		if rep.Joints[i] != joints[i] {
			t.Errorf("joint %d = %v, want %v", i+1, rep.Joints[i], joints[i])
		}
	}
	if rep.Gripper != arm.GripperOpen {
		t.Errorf("gripper = %v, want open", rep.Gripper)
	}

	frame, err = c.Encode(arm.ZeroJoints(5), arm.DefaultGripperCloseAngle)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rep, err = c.Decode(frame)
	if err != nil {
		t.Fatalf("decode own frame: %v", err)
	}
	if rep.Gripper != arm.GripperClose {
		t.Errorf("gripper = %v, want close", rep.Gripper)
	}
}
