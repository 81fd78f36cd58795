package device

// microReader is the minimal main-micro window surface Init needs; declared
// locally so this file has no import-time dependency on internal/micro
// beyond what it actually calls.
type microReader interface {
	ReadByte(offset uint32) (byte, error)
}

// Main-micro mailbox offsets Init reads to learn the device's firmware
// version and code-load state (spec.md §3's Device fields; exact offsets are
// implementation-symbolic per spec.md §6, so these follow the same mailbox
// window internal/eeprom's bank-checksum/block-CRC reads already use).
const (
	offFirmwareMajor uint32 = 0x00
	offFirmwareMinor uint32 = 0x01
	offFirmwareBuild uint32 = 0x02 // 2 bytes, little-endian
	offCodeLoad      uint32 = 0x04
)

// regHeartbeat is the raw main-register-map heartbeat byte, read directly
// rather than through the mailbox window, transliterated from
// aries_api.c's ARIES_MM_HEARTBEAT_ADDR.
const regHeartbeat uint32 = 0x4F4

// heartbeatAttempts is the number of reads ariesFWStatusCheck takes before
// declaring the main micro silent.
const heartbeatAttempts = 100

// Init determines whether the main micro is heartbeating, then populates a
// freshly constructed Device's firmware version, code-load state, and
// derived feature bitset (spec.md §3: "mutated only by initialization and
// periodic refresh"). AddressResolved and Part must already be set by the
// caller before Init runs, since they come from address-resolution and
// part-detection rather than the mailbox.
func (d *Device) Init(heartbeat register, m microReader) error {
	present, err := pollHeartbeat(heartbeat)
	if err != nil {
		return err
	}

	codeLoad, err := m.ReadByte(offCodeLoad)
	if err != nil {
		return err
	}
	d.CodeLoadComplete = codeLoad != 0

	if !present {
		// No Main Micro Heartbeat: firmware version defaults to 0.0.0,
		// mirroring ariesFWStatusCheck's early return.
		d.Version = FirmwareVersion{}
		d.Features = DeriveFeatures(d.Version)
		return nil
	}

	major, err := m.ReadByte(offFirmwareMajor)
	if err != nil {
		return err
	}
	minor, err := m.ReadByte(offFirmwareMinor)
	if err != nil {
		return err
	}
	buildLo, err := m.ReadByte(offFirmwareBuild)
	if err != nil {
		return err
	}
	buildHi, err := m.ReadByte(offFirmwareBuild + 1)
	if err != nil {
		return err
	}

	d.Version = FirmwareVersion{Major: major, Minor: minor, Build: uint16(buildLo) | uint16(buildHi)<<8}
	d.Features = DeriveFeatures(d.Version)
	return nil
}

// pollHeartbeat reads regHeartbeat up to heartbeatAttempts times and reports
// whether its value ever changed, mirroring aries_api.c's
// ariesFWStatusCheck: a heartbeat byte that never moves across 100 tries
// means the main micro firmware isn't running, even though one differing
// read anywhere in the run is enough to declare it alive.
func pollHeartbeat(r register) (bool, error) {
	initial, err := r.ReadBytes(regHeartbeat, 1)
	if err != nil {
		return false, err
	}
	for i := 0; i < heartbeatAttempts; i++ {
		b, err := r.ReadBytes(regHeartbeat, 1)
		if err != nil {
			return false, err
		}
		if b[0] != initial[0] {
			return true, nil
		}
	}
	return false, nil
}
