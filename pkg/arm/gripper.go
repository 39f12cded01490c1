package arm

// GripperState is a commanded or reported gripper position.
type GripperState int

const (
	// GripperUndetermined means no explicit command, or mid-range feedback.
	// It is never itself sent as an actuator target.
	GripperUndetermined GripperState = iota
	GripperOpen
	GripperClose
)

func (g GripperState) String() string {
	switch g {
	case GripperOpen:
		return "open"
	case GripperClose:
		return "close"
	default:
		return "undetermined"
	}
}

// Default actuator angles for the gripper servo, in degrees.
const (
	DefaultGripperOpenAngle  = 90.0
	DefaultGripperCloseAngle = 0.0
)

// Default feedback thresholds: angles at or above OpenMin report open,
// at or below CloseMax report close, anything between is undetermined.
const (
	DefaultGripperOpenMin  = 60.0
	DefaultGripperCloseMax = 30.0
)

// GripperFromAngle classifies a reported gripper angle.
func GripperFromAngle(angle, openMin, closeMax float64) GripperState {
	switch {
	case angle >= openMin:
		return GripperOpen
	case angle <= closeMax:
		return GripperClose
	default:
		return GripperUndetermined
	}
}
