// Package mag drives an MLX90393 three-axis magnetometer over I2C: the
// register protocol, an interrupt-driven sampling loop, a running min/max
// calibration engine and a hysteresis-filtered heading estimator. Raw,
// calibration and heading changes are pushed to registered handlers on the
// sampling goroutine.
package mag

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddr is the MLX90393 I2C address with both address pins low.
const DefaultAddr = 0x0C

// Default sampling-loop tuning. All overridable through Opts.
const (
	defaultWaitTimeout         = 100 * time.Millisecond
	defaultBusDelay            = 10 * time.Millisecond
	defaultAlpha               = 0.5
	defaultWindowSize          = 100
	defaultCalibrationWindow   = 25
	defaultCalibratingInterval = 50 * time.Millisecond
	defaultMeasuringInterval   = 250 * time.Millisecond
)

// Opts holds device construction options. The zero value of each field
// falls back to a documented default, except Bounds which is required.
type Opts struct {
	Addr uint16

	Gain         Gain
	ResolutionX  Resolution
	ResolutionY  Resolution
	ResolutionZ  Resolution
	Filter       Filter
	Oversampling Oversampling

	// Alpha is the low-pass filter coefficient, (0, 1].
	Alpha float64
	// WindowSize caps the sliding window of smoothed samples.
	WindowSize int
	// CalibrationWindow caps the averaging depth while calibrating, for
	// faster bound acquisition.
	CalibrationWindow int
	// CalibratingInterval / MeasuringInterval are the minimum inter-sample
	// spacings per state. Calibrating samples denser for faster settling.
	CalibratingInterval time.Duration
	MeasuringInterval   time.Duration
	// WaitTimeout bounds the data-ready interrupt wait per iteration. It is
	// also the worst-case shutdown latency.
	WaitTimeout time.Duration
	// BusDelay is the write-to-read settle delay within one transaction.
	BusDelay time.Duration

	// Bounds are the externally persisted calibration bounds.
	Bounds Bounds
}

func (o *Opts) fillDefaults() {
	if o.Addr == 0 {
		o.Addr = DefaultAddr
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = defaultAlpha
	}
	if o.WindowSize <= 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.CalibrationWindow <= 0 {
		o.CalibrationWindow = defaultCalibrationWindow
	}
	if o.CalibratingInterval <= 0 {
		o.CalibratingInterval = defaultCalibratingInterval
	}
	if o.MeasuringInterval <= 0 {
		o.MeasuringInterval = defaultMeasuringInterval
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = defaultWaitTimeout
	}
	if o.BusDelay <= 0 {
		o.BusDelay = defaultBusDelay
	}
}

// edgeWaiter blocks until a data-ready edge or the timeout elapses. The
// production implementation wraps a periph gpio.PinIn; the interrupt
// context only wakes the waiter, all I/O happens on the sampling goroutine.
type edgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

type pinWaiter struct {
	pin gpio.PinIn
}

func (p pinWaiter) WaitForEdge(timeout time.Duration) bool {
	return p.pin.WaitForEdge(timeout)
}

// Dev is one MLX90393 device with its sampling goroutine. External callers
// and the loop share the inner state through a single mutex; the
// calibration bounds carry their own synchronization and are never touched
// while the device lock is held.
type Dev struct {
	mu   sync.Mutex
	bus  *bus
	intr edgeWaiter
	opts Opts

	// Configuration cache. Nil means not yet known; gets fall back to a bus
	// read without populating the cache, so an uninitialized device is
	// never assumed. The resolution cache holds the raw CONF3 word since it
	// carries all three axis fields.
	gain         *Gain
	resolution   *uint16
	filter       *Filter
	oversampling *Oversampling

	state     State
	lastState State

	handlers []Handler

	stopc    chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New opens the device on the given bus, configures it, arms the data-ready
// interrupt pin and starts the sampling goroutine. Configuration-step
// errors are logged and tolerated (the subsequent explicit mode command
// re-establishes a known state); a failure to arm the interrupt pin aborts
// initialization.
func New(b i2c.Bus, intr gpio.PinIn, opts Opts) (*Dev, error) {
	opts.fillDefaults()
	if err := intr.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("mag: interrupt pin %s: %w", intr, err)
	}
	d := newDevice(&i2c.Dev{Addr: opts.Addr, Bus: b}, pinWaiter{intr}, opts)
	d.configure()
	go d.run()
	return d, nil
}

// newDevice wires a device without touching hardware. Tests use it with
// scripted fakes.
func newDevice(conn txConn, intr edgeWaiter, opts Opts) *Dev {
	opts.fillDefaults()
	return &Dev{
		bus:   &bus{conn: conn, delay: opts.BusDelay},
		intr:  intr,
		opts:  opts,
		state: StateIdle,
		stopc: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// configure brings the device to a known state and applies the configured
// gain, resolutions, filter and oversampling. Errors here are warnings: the
// device is expected to reach a known state via the next explicit command.
func (d *Dev) configure() {
	d.mu.Lock()
	defer d.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	if err := d.bus.exitMode(); err != nil {
		log.Printf("mag: exiting mode: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.bus.reset(); err != nil {
		log.Printf("mag: resetting: %v", err)
	}
	time.Sleep(2 * time.Second)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"gain", func() error { return d.setGainLocked(d.opts.Gain) }},
		{"x resolution", func() error { return d.setResolutionLocked(AxisX, d.opts.ResolutionX) }},
		{"y resolution", func() error { return d.setResolutionLocked(AxisY, d.opts.ResolutionY) }},
		{"z resolution", func() error { return d.setResolutionLocked(AxisZ, d.opts.ResolutionZ) }},
		{"oversampling", func() error { return d.setOversamplingLocked(d.opts.Oversampling) }},
		{"filter", func() error { return d.setFilterLocked(d.opts.Filter) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			log.Printf("mag: configuring %s: %v", s.name, err)
		}
	}
}

// AddHandler registers an event subscriber. Handlers run in registration
// order on the sampling goroutine.
func (d *Dev) AddHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// State returns the current operating mode.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastState returns the previous operating mode, for diagnostics.
func (d *Dev) LastState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastState
}

func (d *Dev) setStateLocked(s State) {
	d.lastState = d.state
	d.state = s
}

// SetGain read-modify-writes the gain field of CONF1 and caches the value
// on success.
func (d *Dev) SetGain(g Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setGainLocked(g)
}

func (d *Dev) setGainLocked(g Gain) error {
	reg, err := d.bus.readRegister(RegConf1)
	if err != nil {
		return err
	}
	reg &^= conf1GainMask
	reg |= uint16(g) << conf1GainShift
	if err := d.bus.writeRegister(RegConf1, reg); err != nil {
		return err
	}
	d.gain = &g
	return nil
}

// Gain returns the cached gain, or reads and decodes CONF1 if the cache is
// cold. A cold read is not cached.
func (d *Dev) Gain() (Gain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gainLocked()
}

func (d *Dev) gainLocked() (Gain, error) {
	if d.gain != nil {
		return *d.gain, nil
	}
	reg, err := d.bus.readRegister(RegConf1)
	if err != nil {
		return 0, err
	}
	return GainFromBits(uint8((reg & conf1GainMask) >> conf1GainShift))
}

// SetResolution read-modify-writes one axis resolution field of CONF3.
// AxisAll is rejected: the fields are per-axis.
func (d *Dev) SetResolution(axis Axis, r Resolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setResolutionLocked(axis, r)
}

func (d *Dev) setResolutionLocked(axis Axis, r Resolution) error {
	if axis != AxisX && axis != AxisY && axis != AxisZ {
		return ErrInvalidAxis
	}
	reg, err := d.bus.readRegister(RegConf3)
	if err != nil {
		return err
	}
	switch axis {
	case AxisX:
		reg &^= conf3ResXMask
		reg |= uint16(r) << conf3ResXShift
	case AxisY:
		reg &^= conf3ResYMask
		reg |= uint16(r) << conf3ResYShift
	case AxisZ:
		reg &^= conf3ResZMask
		reg |= uint16(r) << conf3ResZShift
	}
	if err := d.bus.writeRegister(RegConf3, reg); err != nil {
		return err
	}
	d.resolution = &reg
	return nil
}

// Resolution returns the cached resolution for one axis, or reads CONF3 if
// the cache is cold.
func (d *Dev) Resolution(axis Axis) (Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolutionLocked(axis)
}

func (d *Dev) resolutionLocked(axis Axis) (Resolution, error) {
	if axis != AxisX && axis != AxisY && axis != AxisZ {
		return 0, ErrInvalidAxis
	}
	var reg uint16
	if d.resolution != nil {
		reg = *d.resolution
	} else {
		var err error
		reg, err = d.bus.readRegister(RegConf3)
		if err != nil {
			return 0, err
		}
	}
	switch axis {
	case AxisX:
		return ResolutionFromBits(uint8((reg & conf3ResXMask) >> conf3ResXShift))
	case AxisY:
		return ResolutionFromBits(uint8((reg & conf3ResYMask) >> conf3ResYShift))
	case AxisZ:
		return ResolutionFromBits(uint8((reg & conf3ResZMask) >> conf3ResZShift))
	default:
		return 0, ErrInvalidAxis
	}
}

// SetFilter read-modify-writes the filter field of CONF3.
func (d *Dev) SetFilter(f Filter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setFilterLocked(f)
}

func (d *Dev) setFilterLocked(f Filter) error {
	reg, err := d.bus.readRegister(RegConf3)
	if err != nil {
		return err
	}
	reg &^= conf3FilterMask
	reg |= uint16(f) << conf3FilterShift
	if err := d.bus.writeRegister(RegConf3, reg); err != nil {
		return err
	}
	d.filter = &f
	return nil
}

// Filter returns the cached filter, or reads CONF3 if the cache is cold.
func (d *Dev) Filter() (Filter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter != nil {
		return *d.filter, nil
	}
	reg, err := d.bus.readRegister(RegConf3)
	if err != nil {
		return 0, err
	}
	return FilterFromBits(uint8((reg & conf3FilterMask) >> conf3FilterShift))
}

// SetOversampling read-modify-writes the oversampling field of CONF3.
func (d *Dev) SetOversampling(o Oversampling) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setOversamplingLocked(o)
}

func (d *Dev) setOversamplingLocked(o Oversampling) error {
	reg, err := d.bus.readRegister(RegConf3)
	if err != nil {
		return err
	}
	reg &^= conf3OSRMask
	reg |= uint16(o)
	if err := d.bus.writeRegister(RegConf3, reg); err != nil {
		return err
	}
	d.oversampling = &o
	return nil
}

// Oversampling returns the cached oversampling, or reads CONF3 if the cache
// is cold.
func (d *Dev) Oversampling() (Oversampling, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.oversampling != nil {
		return *d.oversampling, nil
	}
	reg, err := d.bus.readRegister(RegConf3)
	if err != nil {
		return 0, err
	}
	return OversamplingFromBits(uint8(reg & conf3OSRMask))
}

// SetTriggerInterval enables or disables the trigger-interval bit of CONF2.
func (d *Dev) SetTriggerInterval(enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg, err := d.bus.readRegister(RegConf2)
	if err != nil {
		return err
	}
	reg &^= conf2TriggerIntervalBit
	if enable {
		reg |= conf2TriggerIntervalBit
	}
	return d.bus.writeRegister(RegConf2, reg)
}

func (d *Dev) setWakeupComparatorLocked(enable bool) error {
	reg, err := d.bus.readRegister(RegConf2)
	if err != nil {
		return err
	}
	if enable {
		reg |= conf2WakeupComparator
	} else {
		reg &^= conf2WakeupComparator
	}
	return d.bus.writeRegister(RegConf2, reg)
}

// ReadMeasurement reads one three-axis sample and converts it to µT using
// the cached gain and per-axis resolutions.
func (d *Dev) ReadMeasurement() (Vector3, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readMeasurementLocked()
}

func (d *Dev) readMeasurementLocked() (Vector3, error) {
	x, y, z, err := d.bus.readMeasurement()
	if err != nil {
		return Vector3{}, err
	}
	gain, err := d.gainLocked()
	if err != nil {
		return Vector3{}, err
	}
	resX, err := d.resolutionLocked(AxisX)
	if err != nil {
		return Vector3{}, err
	}
	resY, err := d.resolutionLocked(AxisY)
	if err != nil {
		return Vector3{}, err
	}
	resZ, err := d.resolutionLocked(AxisZ)
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{
		X: Decode(x, resX, gain, AxisX),
		Y: Decode(y, resY, gain, AxisY),
		Z: Decode(z, resZ, gain, AxisZ),
	}, nil
}

// Calibrate runs a foreground calibration window: burst mode is entered,
// the state switches to Calibrating, and the caller blocks for the full
// timeout while the sampling loop widens the bounds. The device returns to
// Idle afterwards.
func (d *Dev) Calibrate(timeout time.Duration) error {
	d.mu.Lock()
	if err := d.bus.exitMode(); err != nil {
		log.Printf("mag: exiting mode: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.bus.startBurst(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.setStateLocked(StateCalibrating)
	d.mu.Unlock()
	log.Printf("mag: calibrating for %s", timeout)

	time.Sleep(timeout)

	d.mu.Lock()
	if err := d.bus.exitMode(); err != nil {
		log.Printf("mag: exiting mode: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	d.setStateLocked(StateIdle)
	d.mu.Unlock()
	log.Printf("mag: calibration complete")
	return nil
}

// Start enables the wakeup comparator, enters wakeup-on-change mode and
// switches the state to Measuring.
func (d *Dev) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.exitMode(); err != nil {
		log.Printf("mag: exiting mode: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.setWakeupComparatorLocked(true); err != nil {
		return err
	}
	if err := d.bus.startWakeup(); err != nil {
		return err
	}
	d.setStateLocked(StateMeasuring)
	log.Printf("mag: measurement started")
	return nil
}

// StartSingle triggers one single-shot measurement. Used by diagnostic
// tools; the sampling loop itself relies on burst or wakeup mode.
func (d *Dev) StartSingle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.startSingle()
}

// End forces Idle, signals the sampling loop to stop and waits for it to
// exit. The loop notices the signal at the top of its next iteration, so
// shutdown latency is bounded by the interrupt wait timeout.
func (d *Dev) End() {
	d.mu.Lock()
	d.setStateLocked(StateIdle)
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.stopc) })
	<-d.done
	log.Printf("mag: ended")
}
