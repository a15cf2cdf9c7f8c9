package mag

// State is the sensor operating mode. Transitions happen only through
// Calibrate, Start and End.
type State int

const (
	StateIdle State = iota
	StateCalibrating
	StateMeasuring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCalibrating:
		return "Calibrating"
	case StateMeasuring:
		return "Measuring"
	}
	return "Unknown"
}
