package fpga

import "os"

// CPLDReadiness polls a mainboard CPLD register to learn whether the
// satellite FPGA is ready to accept staging (spec.md §4.8 step 1: "bus 2,
// slave 0x3C, offset 0x2B on one platform").
type CPLDReadiness struct {
	bus    blockDevice
	offset uint16
}

// NewCPLDReadiness constructs a CPLDReadiness over an already-addressed bus
// handle (SetSlave already pointed at the CPLD's 7-bit address).
func NewCPLDReadiness(bus blockDevice, offset uint16) *CPLDReadiness {
	return &CPLDReadiness{bus: bus, offset: offset}
}

// Ready reports the CPLD register's low bit: set means the FPGA path is
// available.
func (c *CPLDReadiness) Ready() (bool, error) {
	raw, err := c.bus.BlockRead(byte(c.offset), 1)
	if err != nil {
		return false, err
	}
	return raw[0]&0x01 != 0, nil
}

// SentinelReadiness checks for a sentinel file's presence, the fallback
// readiness mechanism spec.md §4.8 step 1 names for platforms without a CPLD
// register (default path: /tmp/FPGA_ON).
type SentinelReadiness struct {
	Path string
}

// Ready reports whether the sentinel file exists.
func (s SentinelReadiness) Ready() (bool, error) {
	_, err := os.Stat(s.Path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
