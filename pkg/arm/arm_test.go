package arm

import (
	"errors"
	"testing"
)

func TestGripperFromAngle(t *testing.T) {
	tests := []struct {
		angle    float64
		expected GripperState
	}{
		{90.0, GripperOpen},
		{60.0, GripperOpen},
		{59.9, GripperUndetermined},
		{45.0, GripperUndetermined},
		{30.1, GripperUndetermined},
		{30.0, GripperClose},
		{0.0, GripperClose},
	}

	for _, tt := range tests {
		got := GripperFromAngle(tt.angle, DefaultGripperOpenMin, DefaultGripperCloseMax)
		if got != tt.expected {
			t.Errorf("GripperFromAngle(%v) = %v, want %v", tt.angle, got, tt.expected)
		}
	}
}

func TestJointVectorClone(t *testing.T) {
	v := JointVector{1, 2, 3, 4, 5}
	c := v.Clone()
	c[0] = 99
	if v[0] != 1 {
		t.Errorf("Clone shares backing array: v[0] = %v", v[0])
	}
}

func TestJointVectorCheckLen(t *testing.T) {
	v := JointVector{1, 2, 3}
	if err := v.CheckLen(3); err != nil {
		t.Errorf("CheckLen(3) = %v, want nil", err)
	}
	if err := v.CheckLen(5); !errors.Is(err, ErrJointCount) {
		t.Errorf("CheckLen(5) = %v, want ErrJointCount", err)
	}
}

func TestJointLimitClamp(t *testing.T) {
	l := JointLimit{Min: -90, Max: 120}

	tests := []struct {
		angle    float64
		expected float64
	}{
		{0, 0},
		{-90, -90},
		{120, 120},
		{-91, -90},
		{200, 120},
	}

	for _, tt := range tests {
		if got := l.Clamp(tt.angle); got != tt.expected {
			t.Errorf("Clamp(%v) = %v, want %v", tt.angle, got, tt.expected)
		}
	}
}

func TestIntentModes(t *testing.T) {
	tests := []struct {
		intent ControlIntent
		mode   Mode
	}{
		{NewJointTeach(ZeroJoints(5), GripperOpen), ModeJointTeach},
		{NewTaskControl(Pose{X: 0.2, Z: 0.3}, GripperUndetermined), ModeTaskControl},
		{NewGripperOnly(GripperClose), ModeGripperOnly},
		{NewManual(Pose{X: 0.2, Z: 0.3}, GripperUndetermined), ModeManual},
	}

	for _, tt := range tests {
		if got := tt.intent.Mode(); got != tt.mode {
			t.Errorf("%T.Mode() = %v, want %v", tt.intent, got, tt.mode)
		}
		if tt.intent.Time().IsZero() {
			t.Errorf("%T.Time() is zero", tt.intent)
		}
	}
}
