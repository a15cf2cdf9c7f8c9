// Package app wires the magnetometer core to its collaborators: the servo
// pointer, the MQTT telemetry/configuration link, the web live view with
// metrics, and the optional NMEA output.
package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/motor"
	"github.com/otaviojr/truenorth/internal/params"
)

// anglePointer is the slice of motor.Servo the pointer handler needs.
type anglePointer interface {
	SetAngle(angle int) error
}

// pointerHandler maps heading events onto the 0-180 degree servo range,
// after applying the user declination.
func pointerHandler(servo anglePointer, declination *params.Var[int]) mag.Handler {
	return func(e mag.Event) {
		ev, ok := e.(mag.HeadingChanged)
		if !ok {
			return
		}
		angle := (ev.Degrees + declination.Get()) % 360
		if angle < 0 {
			angle += 360
		}
		if angle > 180 {
			angle -= 180
		}
		if err := servo.SetAngle(angle); err != nil {
			log.Printf("app: pointing servo: %v", err)
		}
	}
}

// RunDaemon brings the whole compass up and runs until SIGINT/SIGTERM.
func RunDaemon(configPath string) error {
	sys, err := setupSystem(configPath)
	if err != nil {
		return err
	}
	defer sys.close()
	cfg := sys.cfg

	var servo *motor.Servo
	if cfg.ServoPin != "" {
		servo, err = motor.New(cfg.ServoPin)
		if err != nil {
			return err
		}
		defer servo.End()
		sys.dev.AddHandler(pointerHandler(servo, sys.declination))
	}

	clientID := cfg.MQTTClientIDDaemon
	if clientID == "" {
		clientID = "truenorth-daemon"
	}
	client, err := connectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sys.dev.AddHandler(publishEvents(client, cfg))
	if err := watchDeclination(client, cfg, sys.declination); err != nil {
		return err
	}

	state := newWebState()
	sys.dev.AddHandler(state.handleEvent)
	sys.dev.AddHandler(recordMetrics)

	if cfg.NMEASerialPort != "" {
		writer, port, err := newNMEAWriter(cfg.NMEASerialPort, cfg.NMEABaudRate, sys.declination)
		if err != nil {
			return err
		}
		defer port.Close()
		sys.dev.AddHandler(writer.handleEvent)
		log.Printf("app: NMEA output on %s", cfg.NMEASerialPort)
	}

	port := cfg.WebServerPort
	if port == 0 {
		port = 8080
	}
	go func() {
		if err := runWebServer(port, state); err != nil {
			log.Printf("app: web server: %v", err)
		}
	}()

	if err := sys.dev.Start(); err != nil {
		return fmt.Errorf("starting measurement: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("app: shutting down")
	return nil
}

// RunCalibration runs a foreground calibration session: the device samples
// in burst mode for the configured duration while the bounds widen, then
// the final bounds are printed.
func RunCalibration(configPath string) error {
	sys, err := setupSystem(configPath)
	if err != nil {
		return err
	}
	defer sys.close()

	seconds := sys.cfg.CalibrationSeconds
	if seconds <= 0 {
		seconds = 60
	}
	duration := time.Duration(seconds) * time.Second

	sys.dev.AddHandler(func(e mag.Event) {
		if ev, ok := e.(mag.CalibratedChanged); ok {
			fmt.Printf("[CAL] x=[%.2f, %.2f] y=[%.2f, %.2f] z=[%.2f, %.2f]\n",
				ev.MinX, ev.MaxX, ev.MinY, ev.MaxY, ev.MinZ, ev.MaxZ)
		}
	})

	log.Printf("app: rotate the device through all orientations for the next %s", duration)
	if err := sys.dev.Calibrate(duration); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	fmt.Printf("calibration complete:\n")
	fmt.Printf("  x: [%.2f, %.2f]\n", sys.bounds.MinX.Get(), sys.bounds.MaxX.Get())
	fmt.Printf("  y: [%.2f, %.2f]\n", sys.bounds.MinY.Get(), sys.bounds.MaxY.Get())
	fmt.Printf("  z: [%.2f, %.2f]\n", sys.bounds.MinZ.Get(), sys.bounds.MaxZ.Get())
	return nil
}
