package mag

import (
	"log"
	"time"
)

// run is the sampling loop. It owns the low-pass filter, the sliding window
// and the heading estimator exclusively; the device lock is taken only for
// the bus read and the state/handler snapshot, and the calibration bounds
// are touched only after that lock is released.
//
// Each iteration: check the stop signal, wait (bounded) for a data-ready
// edge, read and smooth a sample, gate it on the state-dependent minimum
// spacing, then emit RawChanged followed by CalibratedChanged (while
// calibrating) or HeadingChanged (while measuring).
func (d *Dev) run() {
	defer close(d.done)

	lpf := newLowPassFilter(d.opts.Alpha)
	window := newSampleWindow(d.opts.WindowSize)
	var estimator headingEstimator
	var lastPush time.Time

	for {
		select {
		case <-d.stopc:
			log.Printf("mag: sampling loop ended")
			return
		default:
		}

		if !d.intr.WaitForEdge(d.opts.WaitTimeout) {
			continue
		}

		d.mu.Lock()
		sample, err := d.readMeasurementLocked()
		state := d.state
		handlers := make([]Handler, len(d.handlers))
		copy(handlers, d.handlers)
		d.mu.Unlock()

		if err != nil {
			log.Printf("mag: reading measurement: %v", err)
			continue
		}

		smoothed := lpf.update(sample)

		interval := d.opts.MeasuringInterval
		if state == StateCalibrating {
			interval = d.opts.CalibratingInterval
		}
		if !lastPush.IsZero() && time.Since(lastPush) < interval {
			continue
		}
		lastPush = time.Now()
		window.push(smoothed)

		n := window.len()
		if state == StateCalibrating && n > d.opts.CalibrationWindow {
			n = d.opts.CalibrationWindow
		}
		avg := window.average(n)

		dispatch(handlers, RawChanged{Sample: avg})

		switch state {
		case StateCalibrating:
			if snap, changed := d.opts.Bounds.widen(avg); changed {
				dispatch(handlers, snap)
			}
		case StateMeasuring:
			// Blend the long-window average with the latest smoothed sample:
			// the average keeps the needle steady, the instantaneous sample
			// keeps it responsive.
			blend := Vector3{
				X: (avg.X + smoothed.X) / 2.0,
				Y: (avg.Y + smoothed.Y) / 2.0,
				Z: (avg.Z + smoothed.Z) / 2.0,
			}
			snap := d.opts.Bounds.snapshot()
			if deg, emit := estimator.update(blend, snap.MaxX, snap.MinX, snap.MaxY, snap.MinY); emit {
				dispatch(handlers, HeadingChanged{Degrees: deg})
			}
		}
	}
}
