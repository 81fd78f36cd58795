// Package pma implements spec.md §4.3: 16-bit PMA (physical-medium-attach)
// CSR access in two flavors — a direct path for use when firmware is halted
// or absent, and a main-micro-assisted path required when firmware is
// running and therefore contends for the PMA itself.
package pma

import (
	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/transport"
)

// Direct register offsets for the test-mode PMA access path.
const (
	regPmaAddr uint32 = 0x900
	regPmaLane uint32 = 0x902
	regPmaData uint32 = 0x904
)

// Direct accesses PMA CSRs when firmware is halted or absent.
type Direct struct {
	t *transport.Transport
}

// NewDirect constructs a Direct PMA accessor.
func NewDirect(t *transport.Transport) *Direct { return &Direct{t: t} }

// Read reads the 16-bit PMA CSR at csrAddr for the given lane.
func (d *Direct) Read(lane uint8, csrAddr uint16) (uint16, error) {
	if err := d.t.Lock(); err != nil {
		return 0, err
	}
	defer d.t.Unlock()

	if err := d.t.WriteBytes(regPmaAddr, []byte{byte(csrAddr), byte(csrAddr >> 8)}); err != nil {
		return 0, err
	}
	if err := d.t.WriteBytes(regPmaLane, []byte{lane}); err != nil {
		return 0, err
	}
	b, err := d.t.ReadBytes(regPmaData, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// Write writes the 16-bit PMA CSR at csrAddr for the given lane.
func (d *Direct) Write(lane uint8, csrAddr uint16, val uint16) error {
	if err := d.t.Lock(); err != nil {
		return err
	}
	defer d.t.Unlock()

	if err := d.t.WriteBytes(regPmaAddr, []byte{byte(csrAddr), byte(csrAddr >> 8)}); err != nil {
		return err
	}
	if err := d.t.WriteBytes(regPmaLane, []byte{lane}); err != nil {
		return err
	}
	return d.t.WriteBytes(regPmaData, []byte{byte(val), byte(val >> 8)})
}

// pmaMailbox is the main-micro's mailbox window used to relay PMA CSR
// requests on the caller's behalf, indirect-addressed the same way the main
// micro's SRAM is (spec.md §4.3).
var pmaMailbox = micro.Window{
	Name:        "pma-assist",
	AddressReg:  0xA00,
	CommandReg:  0xA04,
	DataReg:     0xA08,
	DataRegSize: 4,
}

// Assist command codes for pmaMailbox. MicroAssisted does not send them: it
// relays requests through micro.Driver's generic write-block and read-block
// commands and their self-clearing command/poll protocol (internal/micro).
const (
	assistCmdRead  byte = 0x10
	assistCmdWrite byte = 0x11
)

// MicroAssisted performs PMA access by asking the main micro to do it,
// required whenever firmware is running and therefore owns the PMA.
type MicroAssisted struct {
	m *micro.Driver
}

// NewMicroAssisted constructs a MicroAssisted PMA accessor over an existing
// micro.Driver.
func NewMicroAssisted(m *micro.Driver) *MicroAssisted { return &MicroAssisted{m: m} }

// Read requests the main micro read the 16-bit PMA CSR at csrAddr for lane.
func (a *MicroAssisted) Read(lane uint8, csrAddr uint16) (uint16, error) {
	payload := []byte{byte(csrAddr), byte(csrAddr >> 8), lane, 0}
	if err := a.m.WriteBlock(pmaMailbox, 0, payload); err != nil {
		return 0, err
	}
	data, err := a.m.ReadBlock(pmaMailbox, 0, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

// Write requests the main micro write the 16-bit PMA CSR at csrAddr for
// lane.
func (a *MicroAssisted) Write(lane uint8, csrAddr uint16, val uint16) error {
	payload := []byte{byte(csrAddr), byte(csrAddr >> 8), lane, 0}
	if err := a.m.WriteBlock(pmaMailbox, 0, payload); err != nil {
		return err
	}
	return a.m.WriteBlock(pmaMailbox, 4, []byte{byte(val), byte(val >> 8)})
}

// Accessor is implemented by both Direct and MicroAssisted.
type Accessor interface {
	Read(lane uint8, csrAddr uint16) (uint16, error)
	Write(lane uint8, csrAddr uint16, val uint16) error
}

var (
	_ Accessor = (*Direct)(nil)
	_ Accessor = (*MicroAssisted)(nil)
)

// Select picks the Direct or MicroAssisted flavor based on whether firmware
// is heartbeating, per spec.md §4.3: "the choice is governed by whether the
// main-micro heartbeat is present."
func Select(d *device.Device, t *transport.Transport, m *micro.Driver) Accessor {
	if d.Features.Has(device.FeatureHeartbeat) {
		return NewMicroAssisted(m)
	}
	return NewDirect(t)
}
