package mag

import (
	"errors"
	"math"
	"sync"
	"time"
)

// fakeConn simulates an MLX90393 behind the txConn interface: a register
// map, per-mode acknowledge bits and a queue of canned measurements. Writes
// are recorded for framing assertions.
type fakeConn struct {
	mu           sync.Mutex
	regs         map[Register]uint16
	measurements [][3]int16
	ackOverride  map[Command]uint8
	statusErr    bool
	txErr        error

	writes    [][]byte
	lastWrite []byte
	regReads  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		regs:        make(map[Register]uint16),
		ackOverride: make(map[Command]uint8),
	}
}

func (f *fakeConn) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return f.txErr
	}
	if len(w) > 0 {
		cp := make([]byte, len(w))
		copy(cp, w)
		f.writes = append(f.writes, cp)
		f.lastWrite = cp
		if Command(cp[0]&0xF0) == CmdWriteRegister && len(cp) == 4 {
			f.regs[Register(cp[3]>>2)] = uint16(cp[1])<<8 | uint16(cp[2])
		}
		return nil
	}
	if f.lastWrite == nil {
		return errors.New("fake: read without a preceding write")
	}
	f.respond(r)
	return nil
}

func (f *fakeConn) respond(r []byte) {
	cmd := Command(f.lastWrite[0] & 0xF0)
	var status uint8
	switch cmd {
	case CmdStartBurst:
		status = statusAckBurst
	case CmdStartWakeup:
		status = statusAckWakeup
	case CmdStartSingle:
		status = statusAckSingle
	}
	if s, ok := f.ackOverride[cmd]; ok {
		status = s
	}
	if f.statusErr {
		status |= statusError
		f.statusErr = false
	}
	r[0] = status
	switch cmd {
	case CmdReadRegister:
		f.regReads++
		v := f.regs[Register(f.lastWrite[1]>>2)]
		r[1] = byte(v >> 8)
		r[2] = byte(v)
	case CmdReadMeasurement:
		m := f.nextMeasurement()
		for i, axis := range m {
			r[3+2*i] = byte(uint16(axis) >> 8)
			r[4+2*i] = byte(uint16(axis))
		}
	}
}

// nextMeasurement pops the queue, holding the last entry once drained.
func (f *fakeConn) nextMeasurement() [3]int16 {
	if len(f.measurements) == 0 {
		return [3]int16{}
	}
	m := f.measurements[0]
	if len(f.measurements) > 1 {
		f.measurements = f.measurements[1:]
	}
	return m
}

func (f *fakeConn) registerReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regReads
}

func (f *fakeConn) queueMeasurements(ms ...[3]int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measurements = append(f.measurements, ms...)
}

func (f *fakeConn) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// fakeWaiter delivers data-ready edges from a channel.
type fakeWaiter struct {
	edges chan struct{}
}

func newFakeWaiter() *fakeWaiter {
	return &fakeWaiter{edges: make(chan struct{}, 16)}
}

func (f *fakeWaiter) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-f.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (f *fakeWaiter) fire() { f.edges <- struct{}{} }

// fakeBound is an in-memory BoundVar. A non-nil setErr is returned from Set
// while the value still updates, mirroring the persisted variable's
// memory-first semantics.
type fakeBound struct {
	mu     sync.Mutex
	v      float64
	setErr error
}

func (b *fakeBound) Get() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}

func (b *fakeBound) Set(v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v = v
	return b.setErr
}

// newTestBounds returns six fresh bounds at their sentinel extremes.
func newTestBounds() Bounds {
	return Bounds{
		MaxX: &fakeBound{v: -math.MaxFloat64},
		MinX: &fakeBound{v: math.MaxFloat64},
		MaxY: &fakeBound{v: -math.MaxFloat64},
		MinY: &fakeBound{v: math.MaxFloat64},
		MaxZ: &fakeBound{v: -math.MaxFloat64},
		MinZ: &fakeBound{v: math.MaxFloat64},
	}
}

func testOpts() Opts {
	return Opts{
		BusDelay:    time.Nanosecond,
		WaitTimeout: 5 * time.Millisecond,
		Bounds:      newTestBounds(),
	}
}
