// Package transport implements spec.md §4.1: it maps logical reads/writes
// against a 17-bit register address space onto the device's SMBus command
// protocol, in either short (Aries) or long (Intel) framing, with optional
// PEC, and serializes multi-step sequences behind a session lock.
package transport

import (
	"sync"

	"github.com/snksoft/crc"

	"github.com/asteralabs/retimerfw/internal/i2cbus"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// Framing selects how a register address and transfer length are encoded
// onto the wire.
type Framing int

const (
	// FramingShort is the default Aries framing: the low 8 address bits ride
	// in the block command byte, and the high 9 address bits plus the
	// transfer length are written to a preparatory extended-command register
	// before the data block operation.
	FramingShort Framing = iota
	// FramingLong transmits the full address in-band in the command
	// payload, for hosts that cannot issue arbitrary SMBus block commands.
	FramingLong
)

const (
	// cmdExtended is the fixed SMBus command byte for the short-framing
	// extended-command register (address-high/length staging register).
	cmdExtended byte = 0x01
	// cmdLongFraming is the fixed SMBus command byte long framing uses for
	// every access; the real 17-bit address rides in the payload instead.
	cmdLongFraming byte = 0x02

	maxRegAddr = 0x1FFFF // 17-bit address space
	maxLen     = 16
)

var pecTable = crc.NewTable(&crc.Parameters{
	Width:      8,
	Polynomial: 0x07,
	Init:       0x00,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x00,
})

// Transport is a single session's handle to one retimer's register space.
// One Transport is owned by at most one driver at a time (spec.md §5).
type Transport struct {
	bus     i2cbus.BlockDevice
	addr    uint8
	framing Framing
	pec     bool
	mu      sync.Mutex

	initialized bool
}

// New constructs a Transport over an already-open BlockDevice. addr is the
// retimer's 7-bit slave address.
func New(bus i2cbus.BlockDevice, addr uint8, framing Framing, pecEnable bool) *Transport {
	return &Transport{bus: bus, addr: addr, framing: framing, pec: pecEnable}
}

// Init sets the slave address on the bus and marks the handle initialized.
// Must be called once before any Read/Write.
func (t *Transport) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.bus.SetSlave(t.addr); err != nil {
		return err
	}
	t.initialized = true
	return nil
}

func validateRegAndLen(reg uint32, n int) error {
	if reg > maxRegAddr {
		return &retimerfwerr.InvalidArgumentError{Reason: "register address exceeds 17-bit space"}
	}
	if n < 1 || n > maxLen {
		return &retimerfwerr.InvalidArgumentError{Reason: "transfer length must be 1..16 bytes"}
	}
	return nil
}

// Lock acquires the session lock for a multi-step sequence (page-select
// followed by burst; micro-indirect write followed by poll). Callers doing a
// single idempotent status read may skip it and use ReadByteNoLock instead.
func (t *Transport) Lock() error {
	return t.bus.Lock()
}

// Unlock releases the session lock. Safe to call even if Lock was never
// called or failed.
func (t *Transport) Unlock() error {
	return t.bus.Unlock()
}

// ReadBytes reads 1..16 bytes starting at the 17-bit register address reg.
// Callers performing a multi-step sequence must bracket this (and any
// companion writes) with Lock/Unlock themselves.
func (t *Transport) ReadBytes(reg uint32, n int) ([]byte, error) {
	if err := validateRegAndLen(reg, n); err != nil {
		return nil, err
	}
	switch t.framing {
	case FramingLong:
		return t.readLong(reg, n)
	default:
		return t.readShort(reg, n)
	}
}

// WriteBytes writes data (1..16 bytes) starting at the 17-bit register
// address reg.
func (t *Transport) WriteBytes(reg uint32, data []byte) error {
	if err := validateRegAndLen(reg, len(data)); err != nil {
		return err
	}
	switch t.framing {
	case FramingLong:
		return t.writeLong(reg, data)
	default:
		return t.writeShort(reg, data)
	}
}

// ReadByteNoLock reads a single byte from an idempotent status register
// without acquiring the session lock, per spec.md §4.1.
func (t *Transport) ReadByteNoLock(reg uint32) (byte, error) {
	b, err := t.ReadBytes(reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (t *Transport) readShort(reg uint32, n int) ([]byte, error) {
	if err := t.writeExtendedCmd(reg, n); err != nil {
		return nil, err
	}
	cmd := byte(reg & 0xFF)
	data, err := t.bus.BlockRead(cmd, n)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *Transport) writeShort(reg uint32, data []byte) error {
	if err := t.writeExtendedCmd(reg, len(data)); err != nil {
		return err
	}
	cmd := byte(reg & 0xFF)
	payload := t.appendPEC(cmd, data)
	return t.bus.BlockWrite(cmd, payload)
}

// writeExtendedCmd stages the high 9 address bits and the transfer length
// into the extended-command register ahead of a short-framing block op.
func (t *Transport) writeExtendedCmd(reg uint32, n int) error {
	high := uint16((reg >> 8) & 0x1FF)
	payload := []byte{byte(high & 0xFF), byte(high >> 8), byte(n)}
	return t.bus.BlockWrite(cmdExtended, payload)
}

// readLong and writeLong transmit the address in-band: [addrLo, addrMid,
// addrHiAndLen] where addrHiAndLen packs address bit 16 in bit 0 and the
// transfer length in bits 1..5.
func addrHeader(reg uint32, n int) []byte {
	hiAndLen := byte((reg>>16)&0x1) | byte(n<<1)
	return []byte{byte(reg & 0xFF), byte((reg >> 8) & 0xFF), hiAndLen}
}

func (t *Transport) readLong(reg uint32, n int) ([]byte, error) {
	header := addrHeader(reg, n)
	if err := t.bus.BlockWrite(cmdLongFraming, header); err != nil {
		return nil, err
	}
	return t.bus.BlockRead(cmdLongFraming, n)
}

func (t *Transport) writeLong(reg uint32, data []byte) error {
	header := addrHeader(reg, len(data))
	payload := append(append([]byte{}, header...), data...)
	payload = t.appendPEC(cmdLongFraming, payload)
	return t.bus.BlockWrite(cmdLongFraming, payload)
}

// appendPEC appends the SMBus Packet Error Check byte (CRC-8, poly 0x07)
// over {address-cmd-byte, payload} when PEC is enabled.
func (t *Transport) appendPEC(cmd byte, payload []byte) []byte {
	if !t.pec {
		return payload
	}
	buf := append([]byte{cmd}, payload...)
	sum := crc.CalculateCRC(pecTable, buf)
	return append(payload, byte(sum))
}
