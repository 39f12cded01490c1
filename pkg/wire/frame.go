package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gwillem/armlink/pkg/arm"
)

// Frame markers and field labels. The checksum covers every byte between
// the start marker and the CRC label, trailing semicolons included.
const (
	StartMarker = '$'
	EndMarker   = '#'

	fieldSep     = ";"
	gripperLabel = "G"
	crcLabel     = "CRC:"
	actualPrefix = "ACTUAL:"
)

// Identification handshake defaults. The probe writes the command and
// accepts any response containing the token; handshake traffic carries no
// checksum.
const (
	DefaultHandshakeCommand = "$ID#"
	DefaultHandshakeToken   = "ARMLINK"
)

// Decode failures. Each one drops the frame; the stream resynchronizes at
// the next start marker.
var (
	ErrFraming     = errors.New("missing frame marker")
	ErrFieldCount  = errors.New("field count mismatch")
	ErrFieldFormat = errors.New("malformed field")
	ErrChecksum    = errors.New("checksum mismatch")
)

// Report is one decoded state packet from the controller. Gripper is
// undetermined when the frame carries no G field or the reported angle
// falls between the open and close thresholds.
type Report struct {
	Joints  arm.JointVector
	Gripper arm.GripperState
}

// Codec frames outbound joint targets and parses inbound state reports for
// an arm with the configured joint count.
type Codec struct {
	DOF int

	// Thresholds mapping a reported gripper angle to a state.
	GripperOpenMin  float64
	GripperCloseMax float64
}

// NewCodec returns a codec for n joints with the default gripper
// thresholds.
func NewCodec(n int) Codec {
	return Codec{
		DOF:             n,
		GripperOpenMin:  arm.DefaultGripperOpenMin,
		GripperCloseMax: arm.DefaultGripperCloseMax,
	}
}

// Encode builds one outbound frame: joint targets to one decimal digit,
// the gripper actuator angle, and the checksum.
func (c Codec) Encode(joints arm.JointVector, gripperAngle float64) ([]byte, error) {
	if err := joints.CheckLen(c.DOF); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	var b bytes.Buffer
	b.WriteByte(StartMarker)
	for i, v := range joints {
		fmt.Fprintf(&b, "J%d:%s%s", i+1, formatAngle(v), fieldSep)
	}
	fmt.Fprintf(&b, "%s:%s%s", gripperLabel, formatAngle(gripperAngle), fieldSep)
	fmt.Fprintf(&b, "%s%02X", crcLabel, CRC8(b.Bytes()[1:]))
	b.WriteByte(EndMarker)
	return b.Bytes(), nil
}

func formatAngle(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// Decode parses one received frame. Bytes before the last start marker are
// ignored, so a buffer polluted by a truncated frame still decodes once a
// complete frame arrives. Everything after the marker must be exact:
// J1..JN in order, an optional G field, and a checksum matching the
// received field text. The ACTUAL: prefix on the first field is accepted
// and covered by the checksum.
func (c Codec) Decode(frame []byte) (Report, error) {
	start := bytes.LastIndexByte(frame, StartMarker)
	if start < 0 {
		return Report{}, fmt.Errorf("%w: no start marker", ErrFraming)
	}
	body := frame[start+1:]
	end := bytes.IndexByte(body, EndMarker)
	if end < 0 {
		return Report{}, fmt.Errorf("%w: no end marker", ErrFraming)
	}
	body = body[:end]

	idx := bytes.LastIndex(body, []byte(crcLabel))
	if idx < 0 {
		return Report{}, fmt.Errorf("%w: no checksum field", ErrFieldCount)
	}
	payload := strings.TrimPrefix(string(body[:idx]), actualPrefix)
	if !strings.HasSuffix(payload, fieldSep) {
		return Report{}, fmt.Errorf("%w: fields must be semicolon terminated", ErrFieldFormat)
	}
	fields := strings.Split(strings.TrimSuffix(payload, fieldSep), fieldSep)
	if n := len(fields); n != c.DOF && n != c.DOF+1 {
		return Report{}, fmt.Errorf("%w: got %d fields, want %d joints", ErrFieldCount, n, c.DOF)
	}

	joints := make(arm.JointVector, c.DOF)
	for i := range joints {
		v, err := parseField(fields[i], fmt.Sprintf("J%d", i+1))
		if err != nil {
			return Report{}, err
		}
		joints[i] = v
	}
	gripper := arm.GripperUndetermined
	if len(fields) == c.DOF+1 {
		v, err := parseField(fields[c.DOF], gripperLabel)
		if err != nil {
			return Report{}, err
		}
		gripper = arm.GripperFromAngle(v, c.GripperOpenMin, c.GripperCloseMax)
	}

	// The checksum is recomputed over the received field text, ACTUAL:
	// prefix included, so a flipped bit anywhere in the body is caught.
	want := body[idx+len(crcLabel):]
	if len(want) != 2 {
		return Report{}, fmt.Errorf("%w: checksum %q", ErrFieldFormat, want)
	}
	sum, err := strconv.ParseUint(string(want), 16, 8)
	if err != nil {
		return Report{}, fmt.Errorf("%w: checksum %q", ErrFieldFormat, want)
	}
	if got := CRC8(body[:idx]); got != byte(sum) {
		return Report{}, fmt.Errorf("%w: computed %02X, frame says %s", ErrChecksum, got, want)
	}

	return Report{Joints: joints, Gripper: gripper}, nil
}

func parseField(field, label string) (float64, error) {
	name, val, ok := strings.Cut(field, ":")
	if !ok || name != label {
		return 0, fmt.Errorf("%w: %q, want %s:<angle>", ErrFieldFormat, field, label)
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrFieldFormat, field)
	}
	return v, nil
}
