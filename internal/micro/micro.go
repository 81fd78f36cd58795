// Package micro implements spec.md §4.2: byte/block access to the address
// space of the main microcontroller and of each of the 16 path
// microcontrollers, through a command/address/data window exposed in the
// device's register map.
package micro

import (
	"fmt"
	"sync"
	"time"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/asteralabs/retimerfw/internal/transport"
)

// Command codes written to a window's command register.
const (
	cmdReadByte   byte = 0x01
	cmdReadBlock  byte = 0x02
	cmdWriteByte  byte = 0x03
	cmdWriteBlock byte = 0x04
)

// Window names one micro's command/address/data register window. Main and
// path micros share the same layout but different base registers
// (spec.md §4.2 edge cases).
type Window struct {
	Name        string
	AddressReg  uint32
	CommandReg  uint32
	DataReg     uint32
	DataRegSize int // data window width in bytes, typically 16
}

// MainWindow returns the command/address/data window for the main micro.
func MainWindow(base uint32) Window {
	return Window{Name: "main", AddressReg: base, CommandReg: base + 0x04, DataReg: base + 0x08, DataRegSize: 16}
}

// WindowReader adapts a Driver bound to one fixed Window to the single-
// argument ReadByte(offset) shape internal/device.Init needs, without
// device importing this package's Window type (device is imported by this
// package, so the reverse import would cycle).
type WindowReader struct {
	driver *Driver
	window Window
}

// NewWindowReader constructs a WindowReader over driver's window w.
func NewWindowReader(driver *Driver, w Window) WindowReader {
	return WindowReader{driver: driver, window: w}
}

// ReadByte reads a single byte at offset within the bound window.
func (r WindowReader) ReadByte(offset uint32) (byte, error) {
	return r.driver.ReadByte(r.window, offset)
}

// PathWindow returns the command/address/data window for path micro idx
// (0..15). Each path micro's window is offset from the main layout by a
// fixed stride.
func PathWindow(base uint32, idx int) Window {
	const stride = 0x40
	off := base + uint32(idx)*stride
	return Window{Name: fmt.Sprintf("path%d", idx), AddressReg: off, CommandReg: off + 0x04, DataReg: off + 0x08, DataRegSize: 16}
}

// Driver drives indirect transactions against one or more micro windows over
// a shared Transport, serializing per-window so two indirect transactions
// never interleave against the same micro (spec.md §4.2 edge cases).
type Driver struct {
	t             *transport.Transport
	pollAttempts  int
	pollPace      time.Duration
	windowLocks   map[string]*sync.Mutex
	windowLocksMu sync.Mutex
}

// NewDriver constructs a Driver. pollAttempts/pollPace default to 30 tries at
// ~100us pacing per spec.md §4.2 if zero values are passed.
func NewDriver(t *transport.Transport, pollAttempts int, pollPace time.Duration) *Driver {
	if pollAttempts <= 0 {
		pollAttempts = 30
	}
	if pollPace <= 0 {
		pollPace = 100 * time.Microsecond
	}
	return &Driver{t: t, pollAttempts: pollAttempts, pollPace: pollPace, windowLocks: make(map[string]*sync.Mutex)}
}

func (d *Driver) lockFor(w Window) func() {
	d.windowLocksMu.Lock()
	m, ok := d.windowLocks[w.Name]
	if !ok {
		m = &sync.Mutex{}
		d.windowLocks[w.Name] = m
	}
	d.windowLocksMu.Unlock()
	m.Lock()
	return m.Unlock
}

// ReadByte reads a single byte at offset within w's address space.
func (d *Driver) ReadByte(w Window, offset uint32) (byte, error) {
	data, err := d.readBlock(w, offset, 1, cmdReadByte)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// WriteByte writes a single byte at offset within w's address space.
func (d *Driver) WriteByte(w Window, offset uint32, val byte) error {
	return d.writeBlock(w, offset, []byte{val}, cmdWriteByte)
}

// ReadBlock reads n bytes (1..w.DataRegSize) starting at offset.
func (d *Driver) ReadBlock(w Window, offset uint32, n int) ([]byte, error) {
	return d.readBlock(w, offset, n, cmdReadBlock)
}

// WriteBlock writes data (1..w.DataRegSize bytes) starting at offset.
func (d *Driver) WriteBlock(w Window, offset uint32, data []byte) error {
	return d.writeBlock(w, offset, data, cmdWriteBlock)
}

func (d *Driver) readBlock(w Window, offset uint32, n int, cmd byte) ([]byte, error) {
	unlock := d.lockFor(w)
	defer unlock()

	if err := d.t.Lock(); err != nil {
		return nil, err
	}
	defer d.t.Unlock()

	if err := d.issue(w, offset, cmd); err != nil {
		return nil, err
	}
	if err := d.pollSelfClear(w); err != nil {
		return nil, err
	}
	return d.t.ReadBytes(w.DataReg, n)
}

func (d *Driver) writeBlock(w Window, offset uint32, data []byte, cmd byte) error {
	unlock := d.lockFor(w)
	defer unlock()

	if err := d.t.Lock(); err != nil {
		return err
	}
	defer d.t.Unlock()

	if err := d.t.WriteBytes(w.DataReg, data); err != nil {
		return err
	}
	if err := d.issue(w, offset, cmd); err != nil {
		return err
	}
	return d.pollSelfClear(w)
}

// issue writes the target offset into the address registers then latches
// the command code.
func (d *Driver) issue(w Window, offset uint32, cmd byte) error {
	addrBytes := []byte{byte(offset), byte(offset >> 8), byte(offset >> 16)}
	if err := d.t.WriteBytes(w.AddressReg, addrBytes); err != nil {
		return err
	}
	return d.t.WriteBytes(w.CommandReg, []byte{cmd})
}

// pollSelfClear polls the command register until it self-clears to 0,
// signaling the on-device micro processed the request, exhausting after the
// driver's fixed retry budget with MicroBusyError (spec.md §4.2).
func (d *Driver) pollSelfClear(w Window) error {
	return device.PollUntil(d.pollAttempts, d.pollPace, &retimerfwerr.MicroBusyError{Micro: w.Name, Tries: d.pollAttempts}, func() (bool, error) {
		b, err := d.t.ReadByteNoLock(w.CommandReg)
		if err != nil {
			return false, err
		}
		return b == 0, nil
	})
}
