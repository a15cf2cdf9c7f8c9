package app

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/params"
)

// nmeaWriter emits NMEA 0183 HCHDG sentences on a serial port so autopilots
// and chart plotters can consume the compass directly. The magnetic
// variation field carries the user declination.
type nmeaWriter struct {
	mu          sync.Mutex
	port        io.Writer
	declination *params.Var[int]
}

func newNMEAWriter(portName string, baudRate int, declination *params.Var[int]) (*nmeaWriter, io.Closer, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("nmea: opening %s: %w", portName, err)
	}
	return &nmeaWriter{port: port, declination: declination}, port, nil
}

// handleEvent is registered as a sensor event handler; only heading changes
// produce output.
func (n *nmeaWriter) handleEvent(e mag.Event) {
	ev, ok := e.(mag.HeadingChanged)
	if !ok {
		return
	}
	sentence := hchdgSentence(ev.Degrees, n.declination.Get())
	n.mu.Lock()
	_, err := n.port.Write([]byte(sentence))
	n.mu.Unlock()
	if err != nil {
		log.Printf("nmea: write: %v", err)
	}
}

// hchdgSentence formats a HDG sentence: magnetic heading, empty deviation
// fields, and the declination as variation (E positive, W negative).
func hchdgSentence(headingDeg, declinationDeg int) string {
	varDir := "E"
	if declinationDeg < 0 {
		declinationDeg = -declinationDeg
		varDir = "W"
	}
	body := fmt.Sprintf("HCHDG,%d.0,,,%d.0,%s", headingDeg, declinationDeg, varDir)
	return fmt.Sprintf("$%s*%02X\r\n", body, nmeaChecksum(body))
}

// nmeaChecksum is the XOR of all bytes between '$' and '*'.
func nmeaChecksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}
