package mag

import (
	"errors"
	"fmt"
)

// ErrInvalidAxis is returned when AxisAll is passed to a per-axis operation.
var ErrInvalidAxis = errors.New("mag: axis ALL is not valid for a per-axis operation")

// BusError is a transaction-level failure: either the underlying I2C
// transfer failed, or the device set the error bit in the status byte.
type BusError struct {
	Op     string
	Status uint8
	Err    error
}

func (e *BusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mag: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mag: %s failed, status 0x%02X", e.Op, e.Status)
}

func (e *BusError) Unwrap() error { return e.Err }

// ProtocolError means a mode-start command was accepted (no error bit) but
// the device did not acknowledge entering the requested mode.
type ProtocolError struct {
	Op     string
	Status uint8
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mag: %s not acknowledged, status 0x%02X", e.Op, e.Status)
}
