package arm

// LinkParameter describes one joint's geometry: offset along the previous
// axis, link length, twist angle and a fixed joint-angle offset.
// Angles are in degrees, lengths in meters.
type LinkParameter struct {
	D      float64 `json:"d"`
	A      float64 `json:"a"`
	Alpha  float64 `json:"alpha"`
	Offset float64 `json:"offset"`
}

// JointLimit bounds one joint's travel in degrees.
type JointLimit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether angle lies within the limit.
func (l JointLimit) Contains(angle float64) bool {
	return angle >= l.Min && angle <= l.Max
}

// Clamp returns angle forced into the limit.
func (l JointLimit) Clamp(angle float64) float64 {
	if angle < l.Min {
		return l.Min
	}
	if angle > l.Max {
		return l.Max
	}
	return angle
}

// DefaultLinks returns the link table for the stock 5-DOF arm: a yawing
// base column, two 120 mm arm segments, a pitching wrist and an 80 mm
// tool shaft.
func DefaultLinks() []LinkParameter {
	return []LinkParameter{
		{D: 0.100, A: 0, Alpha: 90, Offset: 0},
		{D: 0, A: 0.120, Alpha: 0, Offset: 0},
		{D: 0, A: 0.120, Alpha: 0, Offset: 0},
		{D: 0, A: 0, Alpha: 90, Offset: 90},
		{D: 0.080, A: 0, Alpha: 0, Offset: 0},
	}
}

// DefaultLimits returns the travel limits matching DefaultLinks.
func DefaultLimits() []JointLimit {
	return []JointLimit{
		{Min: -170, Max: 170},
		{Min: -90, Max: 120},
		{Min: -135, Max: 135},
		{Min: -120, Max: 120},
		{Min: -180, Max: 180},
	}
}
