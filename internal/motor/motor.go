// Package motor drives the heading needle: a hobby servo on a 50 Hz PWM
// pin, 500-2500 µs pulse width over a 0-180 degree range.
package motor

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

const (
	pwmFrequency = 50 * physic.Hertz
	periodUS     = 20000
	minPulseUS   = 500
	maxPulseUS   = 2500
	maxAngle     = 180
)

// pwmPin is the slice of gpio.PinOut the servo uses; tests substitute a
// recording fake.
type pwmPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
}

// Servo owns one PWM output and a worker goroutine that applies angle
// updates. SetAngle never blocks on the hardware.
type Servo struct {
	pin pwmPin

	mu    sync.Mutex
	angle int

	anglec chan int
	stopc  chan struct{}
	done   chan struct{}
}

// New looks up the named GPIO pin and starts the servo worker.
func New(pinName string) (*Servo, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("motor: pin %q not found", pinName)
	}
	return newServo(pin), nil
}

func newServo(pin pwmPin) *Servo {
	s := &Servo{
		pin:    pin,
		anglec: make(chan int, 1),
		stopc:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Servo) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stopc:
			log.Printf("motor: worker ended")
			return
		case angle := <-s.anglec:
			if err := s.apply(angle); err != nil {
				log.Printf("motor: applying angle %d: %v", angle, err)
			}
		}
	}
}

func (s *Servo) apply(angle int) error {
	pulseUS := minPulseUS + angle*(maxPulseUS-minPulseUS)/maxAngle
	duty := gpio.Duty(uint64(pulseUS) * uint64(gpio.DutyMax) / periodUS)
	return s.pin.PWM(duty, pwmFrequency)
}

// SetAngle moves the needle. Angles outside 0-180 are a caller error. A
// pending unapplied angle is replaced rather than queued.
func (s *Servo) SetAngle(angle int) error {
	if angle < 0 || angle > maxAngle {
		return fmt.Errorf("motor: angle %d out of range 0-%d", angle, maxAngle)
	}
	s.mu.Lock()
	s.angle = angle
	s.mu.Unlock()

	select {
	case s.anglec <- angle:
	default:
		select {
		case <-s.anglec:
		default:
		}
		select {
		case s.anglec <- angle:
		default:
		}
	}
	return nil
}

// Angle returns the last requested angle.
func (s *Servo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// End stops the worker and waits for it to exit.
func (s *Servo) End() {
	close(s.stopc)
	<-s.done
}
