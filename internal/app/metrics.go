package app

import (
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	headingDegrees = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "truenorth_heading_degrees",
		Help: "Last emitted compass heading in degrees",
	})
	rawEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truenorth_raw_events_total",
		Help: "Windowed-average samples emitted by the sampling loop",
	})
	calibrationEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truenorth_calibration_events_total",
		Help: "Calibration bound updates emitted while calibrating",
	})
	headingEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truenorth_heading_events_total",
		Help: "Heading changes that passed the hysteresis threshold",
	})
)

func init() {
	prometheus.MustRegister(headingDegrees)
	prometheus.MustRegister(rawEvents)
	prometheus.MustRegister(calibrationEvents)
	prometheus.MustRegister(headingEvents)
}

// recordMetrics is a sensor event handler feeding the /metrics endpoint.
func recordMetrics(e mag.Event) {
	switch ev := e.(type) {
	case mag.RawChanged:
		rawEvents.Inc()
	case mag.CalibratedChanged:
		calibrationEvents.Inc()
	case mag.HeadingChanged:
		headingEvents.Inc()
		headingDegrees.Set(float64(ev.Degrees))
	}
}
