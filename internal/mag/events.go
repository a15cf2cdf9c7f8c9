package mag

import "log"

// Vector3 is one three-axis sample in µT.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Event is a change notification pushed to subscribers. The concrete types
// are RawChanged, CalibratedChanged and HeadingChanged.
type Event interface {
	isEvent()
}

// RawChanged carries the windowed average of recent smoothed samples.
type RawChanged struct {
	Sample Vector3 `json:"sample"`
}

// CalibratedChanged carries a snapshot of the six calibration bounds, sent
// whenever a sample widened at least one of them.
type CalibratedChanged struct {
	MaxX float64 `json:"max_x"`
	MinX float64 `json:"min_x"`
	MaxY float64 `json:"max_y"`
	MinY float64 `json:"min_y"`
	MaxZ float64 `json:"max_z"`
	MinZ float64 `json:"min_z"`
}

// HeadingChanged carries the new heading in integer degrees, [0, 360).
type HeadingChanged struct {
	Degrees int `json:"degrees"`
}

func (RawChanged) isEvent()        {}
func (CalibratedChanged) isEvent() {}
func (HeadingChanged) isEvent()    {}

// Handler receives events synchronously on the sampling loop goroutine.
// Handlers must not block for long; a slow handler delays sampling.
type Handler func(Event)

// dispatch invokes every handler in registration order. A panicking handler
// is isolated and logged so it cannot take the sampling loop down.
func dispatch(handlers []Handler, e Event) {
	for _, h := range handlers {
		call(h, e)
	}
}

func call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mag: event handler panic: %v", r)
		}
	}()
	h(e)
}
