// Package fpga implements spec.md §4.8: the satellite-FPGA-mediated EEPROM
// programming path used on platforms where up to eight retimers share one
// DPRAM staging area, fed through a second I2C controller. Grounded on the
// same quiesce/poll idiom internal/eeprom uses, and on
// original_source/inventory/rt_manager.cpp's platform-capability probe for
// choosing this path over the direct one.
package fpga

import (
	"time"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/image"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// DPRAM staging offsets, addressed through dpramIO's own 24-bit header since
// they run past internal/transport's 17-bit per-retimer register window
// (spec.md §4.8).
const (
	offImageBase  uint32 = 0x00_0000
	offImageSize  uint32 = 0x04_0000
	offImageCRC   uint32 = 0x04_0004
	offUpdateTrig uint32 = 0x04_0008
	offReadTrig   uint32 = 0x04_000C
)

// pageSize is the DPRAM staging transfer unit (spec.md §4.8 "written as
// 256-byte pages"); each page is sent as dpramChunk-sized sub-bursts.
const pageSize = 256

// BroadcastMask addresses every retimer on the bridge (spec.md §4.8).
const BroadcastMask uint8 = 0xFF

// ReadinessMode selects how the bridge checks the mainboard is ready to
// accept FPGA-mediated programming (spec.md §4.8.1).
type ReadinessMode int

const (
	// ReadinessCPLD polls a mainboard CPLD register.
	ReadinessCPLD ReadinessMode = iota
	// ReadinessSentinel checks for a sentinel file's presence.
	ReadinessSentinel
)

// Status is the decoded 4-byte update/read status word (spec.md §4.8).
type Status struct {
	Verification byte
	WriteNack    byte
	ReadNack     byte
	Checksum     byte
}

// done reports whether the update-trigger poll can stop: the verification
// byte reading 0 signals completion (spec.md §4.8 step 3).
func (s Status) done() bool { return s.Verification == 0 }

// failing reports whether any status byte flagged a per-retimer failure.
func (s Status) failing() bool {
	return s.WriteNack != 0 || s.ReadNack != 0 || s.Checksum != 0
}

// ReadinessChecker reports whether the mainboard FPGA is ready to accept
// staging, via whichever mechanism the platform uses (spec.md §4.8.1).
type ReadinessChecker interface {
	Ready() (bool, error)
}

// Bridge drives the FPGA's DPRAM staging/trigger/poll/drain protocol for up
// to eight retimers behind one bridge transport.
type Bridge struct {
	io         *dpramIO
	readiness  ReadinessChecker
	maxRetries int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewBridge constructs a Bridge over a raw I2C block device — the bridge's
// DPRAM address space is wider than internal/transport's per-retimer 17-bit
// register window, so it talks to the bus directly through dpramIO rather
// than through a Transport. pollInterval/pollTimeout/maxRetries default to
// spec.md §4.8's 1 Hz / 60 s / 2 retries when zero values are passed.
func NewBridge(bus blockDevice, readiness ReadinessChecker, maxRetries int, pollInterval, pollTimeout time.Duration) *Bridge {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 60 * time.Second
	}
	return &Bridge{io: &dpramIO{bus: bus}, readiness: readiness, maxRetries: maxRetries, pollInterval: pollInterval, pollTimeout: pollTimeout}
}

// Write stages img into the FPGA's DPRAM and triggers a broadcast update,
// retrying only the retimers a failing status byte identifies, per spec.md
// §4.8 steps 1-3.
func (b *Bridge) Write(img *image.Image) error {
	ready, err := b.readiness.Ready()
	if err != nil {
		return err
	}
	if !ready {
		return &retimerfwerr.FpgaNotReadyError{Reason: "mainboard readiness gate failed"}
	}

	if err := b.stage(img); err != nil {
		return err
	}

	mask := BroadcastMask
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if err := b.io.writeBytes(offUpdateTrig, []byte{mask}); err != nil {
			return err
		}
		status, err := b.pollUpdateStatus()
		if err != nil {
			return err
		}
		if !status.failing() {
			return nil
		}
		if attempt == b.maxRetries {
			return classifyFailure(status, mask)
		}
		mask = failingMask(status, mask)
	}
	return nil
}

// Verify reads retimer 0's image back out of DPRAM and compares it against
// img, reusing the read/drain half of the protocol (spec.md §4.8 steps 4-5).
// The other retimers behind the bridge are not read back; a mismatch is
// reported with RetimerMask set to BroadcastMask.
func (b *Bridge) Verify(img *image.Image) error {
	got, err := b.Read(0)
	if err != nil {
		return err
	}
	for i := range got {
		if got[i] != img.Data[i] {
			return &retimerfwerr.EepromVerifyFailure{Addresses: []uint32{uint32(i)}, RetimerMask: BroadcastMask}
		}
	}
	return nil
}

// Read triggers a DPRAM read for one retimer and drains the staged bytes
// (spec.md §4.8 steps 4-5).
func (b *Bridge) Read(retimer uint8) ([]byte, error) {
	trig := byte(retimer<<4) | 0x01
	if err := b.io.writeBytes(offReadTrig, []byte{trig}); err != nil {
		return nil, err
	}
	if err := b.pollReadStatus(); err != nil {
		return nil, err
	}
	return b.drain()
}

func (b *Bridge) stage(img *image.Image) error {
	end := img.End()
	for off := 0; off < end; off += pageSize {
		pageEnd := off + pageSize
		if pageEnd > end {
			pageEnd = end
		}
		if err := writePaged(b.io, offImageBase+uint32(off), img.Data[off:pageEnd]); err != nil {
			return err
		}
	}
	sizeBytes := []byte{byte(end), byte(end >> 8), byte(end >> 16), byte(end >> 24)}
	if err := b.io.writeBytes(offImageSize, sizeBytes); err != nil {
		return err
	}
	crc := crc32MPEG2(img.Data[:end])
	crcBytes := []byte{byte(crc >> 24), byte(crc >> 16), byte(crc >> 8), byte(crc)}
	return b.io.writeBytes(offImageCRC, crcBytes)
}

func (b *Bridge) drain() ([]byte, error) {
	out := make([]byte, 0, image.Size)
	for off := 0; off < image.Size; off += dpramChunk {
		chunk, err := b.io.readBytes(offImageBase+uint32(off), dpramChunk)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// dpramChunk is the per-transfer size staging/draining moves at a time,
// chosen so header+payload stays under the SMBus block-transfer limit
// (internal/i2cbus.validateBlockLen's 32-byte cap).
const dpramChunk = 16

// writePaged writes data in dpramChunk-sized sub-bursts starting at base.
func writePaged(io *dpramIO, base uint32, data []byte) error {
	for off := 0; off < len(data); off += dpramChunk {
		end := off + dpramChunk
		if end > len(data) {
			end = len(data)
		}
		if err := io.writeBytes(base+uint32(off), data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) pollUpdateStatus() (Status, error) {
	var status Status
	timeoutErr := &retimerfwerr.FpgaNotReadyError{Reason: "status poll timed out"}
	err := device.PollDeadline(b.pollTimeout, b.pollInterval, timeoutErr, func() (bool, error) {
		raw, err := b.io.readBytes(offUpdateTrig, 4)
		if err != nil {
			return false, err
		}
		status = Status{Verification: raw[0], WriteNack: raw[1], ReadNack: raw[2], Checksum: raw[3]}
		return status.done() || status.failing(), nil
	})
	return status, err
}

func (b *Bridge) pollReadStatus() error {
	timeoutErr := &retimerfwerr.FpgaNotReadyError{Reason: "status poll timed out"}
	return device.PollDeadline(b.pollTimeout, b.pollInterval, timeoutErr, func() (bool, error) {
		raw, err := b.io.readBytes(offReadTrig, 1)
		if err != nil {
			return false, err
		}
		return raw[0]&0x01 == 0, nil
	})
}

// failingMask narrows mask down to the retimers a failing status actually
// flagged, so a retry only targets them (spec.md §4.8 step 3).
func failingMask(status Status, mask uint8) uint8 {
	return mask & (status.WriteNack | status.ReadNack | status.Checksum)
}

// classifyFailure maps the first still-failing status category to its
// sentinel error, in WriteNack > ReadNack > Checksum priority.
func classifyFailure(status Status, mask uint8) error {
	switch {
	case status.WriteNack != 0:
		return &retimerfwerr.EepromWriteError{Reason: "fpga write-nack for retimer mask"}
	case status.ReadNack != 0:
		return &retimerfwerr.EepromVerifyFailure{RetimerMask: mask}
	default:
		return &retimerfwerr.EepromCrcByteFailError{BlockIndex: -1}
	}
}
