package mag

import (
	"log"
	"math"
)

// BoundVar is one externally-owned, independently-synchronized calibration
// bound. The persisted parameter store provides the production
// implementation; the sensor only reads and conditionally widens it.
type BoundVar interface {
	Get() float64
	Set(float64) error
}

// Bounds groups the six calibration bounds. Max bounds start at the lowest
// representable value and min bounds at the highest, so the first
// calibration sample initializes all six.
type Bounds struct {
	MaxX BoundVar
	MinX BoundVar
	MaxY BoundVar
	MinY BoundVar
	MaxZ BoundVar
	MinZ BoundVar
}

// snapshot reads all six bounds. Each Get takes the bound's own short-lived
// lock; the caller must not hold the sensor lock.
func (b Bounds) snapshot() CalibratedChanged {
	return CalibratedChanged{
		MaxX: b.MaxX.Get(), MinX: b.MinX.Get(),
		MaxY: b.MaxY.Get(), MinY: b.MinY.Get(),
		MaxZ: b.MaxZ.Get(), MinZ: b.MinZ.Get(),
	}
}

// sentinel reports whether a bound still holds its initial representable
// extreme, meaning no calibration sample has touched it yet.
func sentinel(v float64) bool {
	return v == math.MaxFloat64 || v == -math.MaxFloat64
}

// widen feeds one averaged sample through the calibration engine: any axis
// value beyond its stored bound pushes that bound outward. Bounds only ever
// widen; resetting them is an explicit application-level operation. Returns
// the post-update snapshot and whether anything changed. Seeding a bound off
// its initial extreme is not reported as a change, so subscribers never see
// a snapshot with sentinel values in it. Persistence failures are logged and
// the in-memory widening still counts, matching the lenient
// configuration-error policy.
func (b Bounds) widen(s Vector3) (CalibratedChanged, bool) {
	changed := false
	axes := []struct {
		value    float64
		max, min BoundVar
		name     string
	}{
		{s.X, b.MaxX, b.MinX, "x"},
		{s.Y, b.MaxY, b.MinY, "y"},
		{s.Z, b.MaxZ, b.MinZ, "z"},
	}
	for _, a := range axes {
		if prev := a.max.Get(); a.value > prev {
			if err := a.max.Set(a.value); err != nil {
				log.Printf("mag: setting max_%s: %v", a.name, err)
			}
			if !sentinel(prev) {
				changed = true
			}
		}
		if prev := a.min.Get(); a.value < prev {
			if err := a.min.Set(a.value); err != nil {
				log.Printf("mag: setting min_%s: %v", a.name, err)
			}
			if !sentinel(prev) {
				changed = true
			}
		}
	}
	return b.snapshot(), changed
}
