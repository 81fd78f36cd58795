package i2cbus

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// ArpAssigner resolves a retimer's SMBus address over a UART side-channel
// when the device does not answer at its configured fixed address, the
// fallback original_source/concurrent-update/updateRetimerFwOverI2C.c names
// and the ampli-pi4 reference driver's address-assignment handshake models.
type ArpAssigner struct {
	devPath  string
	baudRate int
	settle   time.Duration
}

// NewArpAssigner constructs an ArpAssigner over the given UART device path.
// settle defaults to 100ms, the time the handshake needs to propagate through
// a daisy-chained expander, if zero.
func NewArpAssigner(devPath string, baudRate int, settle time.Duration) *ArpAssigner {
	if baudRate <= 0 {
		baudRate = 9600
	}
	if settle <= 0 {
		settle = 100 * time.Millisecond
	}
	return &ArpAssigner{devPath: devPath, baudRate: baudRate, settle: settle}
}

// Assign sends the three-byte address-assignment sequence over UART and
// waits for it to settle. The retimer firmware starts with no SMBus address
// and blocks until it receives this handshake.
func (a *ArpAssigner) Assign(addr uint8) error {
	port, err := serial.Open(a.devPath, &serial.Mode{
		BaudRate: a.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return &retimerfwerr.ArpUnsuccessfulError{Reason: fmt.Sprintf("open %s: %v", a.devPath, err)}
	}
	defer port.Close()

	if _, err := port.Write([]byte{0x41, addr, 0x0A}); err != nil {
		return &retimerfwerr.ArpUnsuccessfulError{Reason: fmt.Sprintf("write uart: %v", err)}
	}
	time.Sleep(a.settle)
	return nil
}

// Resolve probes the bus at addr; on no response, it runs the UART
// handshake to assign addr and probes once more. Returns true when the device
// answered at its fixed address without the handshake, and false when the
// handshake had to run first (Device.AddressResolved). A device that still
// does not answer after the handshake yields an ArpUnsuccessfulError.
func (a *ArpAssigner) Resolve(bus BlockDevice, addr uint8, probe func(BlockDevice) error) (bool, error) {
	if err := bus.SetSlave(addr); err != nil {
		return false, err
	}
	if probe(bus) == nil {
		return true, nil
	}

	if err := a.Assign(addr); err != nil {
		return false, err
	}
	if err := bus.SetSlave(addr); err != nil {
		return false, err
	}
	if probe(bus) == nil {
		return false, nil
	}
	return false, &retimerfwerr.ArpUnsuccessfulError{Reason: "device did not answer after address assignment"}
}
