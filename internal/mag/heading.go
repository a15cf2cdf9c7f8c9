package mag

import "math"

// headingHysteresisDeg is the minimum angular movement, in degrees, before
// a new heading is emitted. It suppresses event flooding from sensor jitter
// near any heading, including across the 0/360 boundary.
const headingHysteresisDeg = 2

// headingDegrees computes a compass heading from offset-compensated X/Y
// field components, normalized into [0, 360).
func headingDegrees(calcX, calcY float64) float64 {
	heading := math.Atan2(calcX, calcY) * 180.0 / math.Pi
	if heading < 0 {
		heading += 360.0
	}
	return heading
}

// angularDistance returns the shorter-arc distance between two headings in
// integer degrees, so 359 and 1 are 2 degrees apart, not 358.
func angularDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// headingEstimator tracks the last emitted heading and applies hysteresis.
// The zero value starts with a last emitted heading of 0.
type headingEstimator struct {
	last int
}

// update offset-compensates the sample to the calibration midpoints,
// computes the heading and reports whether it moved far enough past the
// last emitted value to be worth a new event. The last emitted value only
// advances when update reports true.
func (h *headingEstimator) update(s Vector3, maxX, minX, maxY, minY float64) (int, bool) {
	calcX := s.X - (maxX+minX)/2.0
	calcY := s.Y - (maxY+minY)/2.0
	deg := int(math.Round(headingDegrees(calcX, calcY))) % 360
	if angularDistance(deg, h.last) <= headingHysteresisDeg {
		return h.last, false
	}
	h.last = deg
	return deg, true
}
