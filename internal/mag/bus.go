package mag

import (
	"time"
)

// Status byte bits. Every response starts with a status byte; 0x10 flags a
// device error, and each sampling mode has its own acknowledge bit.
const (
	statusError     = 0x10
	statusAckSingle = 0x20
	statusAckWakeup = 0x40
	statusAckBurst  = 0x80
)

// txConn is the slice of periph's i2c.Dev the bus layer needs. Tests
// substitute a scripted fake.
type txConn interface {
	Tx(w, r []byte) error
}

// bus issues MLX90393 command/register transactions. Every transaction is a
// write, a fixed settle delay, then a read whose first byte is the status.
type bus struct {
	conn  txConn
	delay time.Duration
}

// transact performs one write-then-read exchange and validates the status
// byte. n is the expected response length including the status byte.
func (b *bus) transact(op string, w []byte, n int) ([]byte, error) {
	if err := b.conn.Tx(w, nil); err != nil {
		return nil, &BusError{Op: op, Err: err}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	r := make([]byte, n)
	if err := b.conn.Tx(nil, r); err != nil {
		return nil, &BusError{Op: op, Err: err}
	}
	if r[0]&statusError != 0 {
		return nil, &BusError{Op: op, Status: r[0]}
	}
	return r, nil
}

// readRegister reads one 16-bit register. Wire format: write
// [RR, reg<<2], read [status, hi, lo].
func (b *bus) readRegister(reg Register) (uint16, error) {
	r, err := b.transact("read register", []byte{byte(CmdReadRegister), byte(reg) << 2}, 3)
	if err != nil {
		return 0, err
	}
	return uint16(r[1])<<8 | uint16(r[2]), nil
}

// writeRegister writes one 16-bit register. Wire format: write
// [WR, hi, lo, reg<<2], read [status].
func (b *bus) writeRegister(reg Register, value uint16) error {
	w := []byte{byte(CmdWriteRegister), byte(value >> 8), byte(value), byte(reg) << 2}
	_, err := b.transact("write register", w, 1)
	return err
}

// readMeasurement reads one three-axis sample. Wire format: write
// [RM|ALL], read [status, t_hi, t_lo, x_hi, x_lo, y_hi, y_lo, z_hi, z_lo];
// axis values are signed 16-bit big-endian.
func (b *bus) readMeasurement() (x, y, z int16, err error) {
	r, err := b.transact("read measurement", []byte{byte(CmdReadMeasurement) | byte(AxisAll)}, 9)
	if err != nil {
		return 0, 0, 0, err
	}
	x = int16(r[3])<<8 | int16(r[4])
	y = int16(r[5])<<8 | int16(r[6])
	z = int16(r[7])<<8 | int16(r[8])
	return x, y, z, nil
}

// startMode issues a mode-start command with the ALL axis mask and checks
// the mode acknowledge bit. A clear error bit with a missing acknowledge is
// still a failure.
func (b *bus) startMode(op string, cmd Command, ack uint8) error {
	r, err := b.transact(op, []byte{byte(cmd) | byte(AxisAll)}, 1)
	if err != nil {
		return err
	}
	if r[0]&ack == 0 {
		return &ProtocolError{Op: op, Status: r[0]}
	}
	return nil
}

func (b *bus) startBurst() error {
	return b.startMode("start burst", CmdStartBurst, statusAckBurst)
}

func (b *bus) startWakeup() error {
	return b.startMode("start wakeup", CmdStartWakeup, statusAckWakeup)
}

func (b *bus) startSingle() error {
	return b.startMode("start single", CmdStartSingle, statusAckSingle)
}

// exitMode takes the device out of any sampling mode.
func (b *bus) exitMode() error {
	_, err := b.transact("exit mode", []byte{byte(CmdExitMode)}, 1)
	return err
}

// reset issues a soft reset.
func (b *bus) reset() error {
	_, err := b.transact("reset", []byte{byte(CmdReset)}, 1)
	return err
}
