//go:build linux

package i2cbus

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// Linux I2C ioctl surface (linux/i2c-dev.h, linux/i2c.h). Mirrors the
// ampli-pi4 reference driver's struct layout, generalized from a
// single-fixed-address preamp bus to an arbitrary slave address per Open.
const (
	i2cSlaveIOCTL = 0x0703 // I2C_SLAVE
	i2cRdwrIOCTL  = 0x0707 // I2C_RDWR
	i2cMsgRD      = 0x0001 // i2c_msg flag: read direction
)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h.
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	_pad   uint16
	buf    uintptr
}

// i2cRdwr mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type i2cRdwr struct {
	msgs  uintptr
	nmsgs uint32
}

// LinuxBus is the real hardware BlockDevice, communicating via the Linux
// I2C_RDWR ioctl so every transaction gets a REPEATED START rather than a
// STOP between the command byte and the data phase, matching what SMBus
// block operations against the retimer's command protocol require.
type LinuxBus struct {
	fd      int
	addr    uint16
	locked  bool
	limiter *rate.Limiter

	lockRetries int
	lockBackoff time.Duration
}

// maxOpsPerSec bounds how fast BlockWrite/BlockRead issue ioctls against the
// bus fd, the same op-pacing literal the ampli-pi4 reference driver uses.
const maxOpsPerSec = 500

// NewLinuxBus constructs a LinuxBus. lockRetries/lockBackoff govern Lock's
// retry budget (spec.md §5: 100 retries, 1ms backoff by default). The
// limiter caps burst transaction rate at maxOpsPerSec with a burst of 10,
// gating every BlockWrite/BlockRead the same way the ampli-pi4 reference
// driver paces its own I2C transactions.
func NewLinuxBus(lockRetries int, lockBackoff time.Duration) *LinuxBus {
	return &LinuxBus{
		fd:          -1,
		limiter:     rate.NewLimiter(rate.Limit(maxOpsPerSec), 10),
		lockRetries: lockRetries,
		lockBackoff: lockBackoff,
	}
}

func (b *LinuxBus) Open(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return &retimerfwerr.TransportError{Op: "open " + path, Errno: err}
	}
	b.fd = fd
	return nil
}

func (b *LinuxBus) SetSlave(addr uint8) error {
	if b.fd < 0 {
		return &retimerfwerr.InvalidArgumentError{Reason: "i2cbus: not open"}
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cSlaveIOCTL, uintptr(addr)); errno != 0 {
		return &retimerfwerr.TransportError{Op: "I2C_SLAVE", Errno: errno}
	}
	b.addr = uint16(addr)
	return nil
}

func (b *LinuxBus) BlockWrite(cmdByte byte, payload []byte) error {
	if err := validateBlockLen(len(payload)); err != nil {
		return err
	}
	if b.fd < 0 {
		return &retimerfwerr.InvalidArgumentError{Reason: "i2cbus: not open"}
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return &retimerfwerr.TransportError{Op: "rate limiter wait", Errno: err}
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = cmdByte
	copy(buf[1:], payload)

	msgs := [1]i2cMsg{
		{addr: b.addr, flags: 0, length: uint16(len(buf)), buf: uintptr(unsafe.Pointer(&buf[0]))},
	}
	rdwr := i2cRdwr{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: 1}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&rdwr))); errno != 0 {
		return &retimerfwerr.TransportError{Op: "I2C_RDWR write", Errno: errno}
	}
	return nil
}

func (b *LinuxBus) BlockRead(cmdByte byte, length int) ([]byte, error) {
	if err := validateBlockLen(length); err != nil {
		return nil, err
	}
	if b.fd < 0 {
		return nil, &retimerfwerr.InvalidArgumentError{Reason: "i2cbus: not open"}
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return nil, &retimerfwerr.TransportError{Op: "rate limiter wait", Errno: err}
	}
	wbuf := [1]byte{cmdByte}
	rbuf := make([]byte, length)

	msgs := [2]i2cMsg{
		{addr: b.addr, flags: 0, length: 1, buf: uintptr(unsafe.Pointer(&wbuf[0]))},
		{addr: b.addr, flags: i2cMsgRD, length: uint16(length), buf: uintptr(unsafe.Pointer(&rbuf[0]))},
	}
	rdwr := i2cRdwr{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: 2}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&rdwr))); errno != 0 {
		return nil, &retimerfwerr.TransportError{Op: "I2C_RDWR read", Errno: errno}
	}
	return rbuf, nil
}

// Lock takes an exclusive advisory lock (flock) over the whole bus fd,
// retried lockRetries times with lockBackoff between attempts (spec.md §5).
// It is released on every exit path via Unlock, including error paths.
func (b *LinuxBus) Lock() error {
	if b.fd < 0 {
		return &retimerfwerr.InvalidArgumentError{Reason: "i2cbus: not open"}
	}
	var lastErr error
	for attempt := 0; attempt <= b.lockRetries; attempt++ {
		err := unix.Flock(b.fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			b.locked = true
			return nil
		}
		lastErr = err
		if attempt < b.lockRetries {
			time.Sleep(b.lockBackoff)
		}
	}
	_ = lastErr
	return &retimerfwerr.BusBusyError{Tries: b.lockRetries + 1}
}

func (b *LinuxBus) Unlock() error {
	if b.fd < 0 || !b.locked {
		return nil
	}
	b.locked = false
	if err := unix.Flock(b.fd, unix.LOCK_UN); err != nil {
		return &retimerfwerr.TransportError{Op: "flock unlock", Errno: err}
	}
	return nil
}

func (b *LinuxBus) Close() error {
	if b.fd < 0 {
		return nil
	}
	_ = b.Unlock()
	err := unix.Close(b.fd)
	b.fd = -1
	if err != nil {
		return &retimerfwerr.TransportError{Op: "close", Errno: err}
	}
	return nil
}
