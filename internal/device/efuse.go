package device

// Package-level register offsets for the eFuse and temperature-ADC families
// spec.md §6 names but leaves the readback routine to the implementation
// (grounded on original_source/aries-fw-update/aries_misc.c's
// ariesGetTempCalibrationCodes/ariesReadPmaTempMax/ariesReadPmaAvgTemp).
const (
	regEfuseControl uint32 = 0x8EC
	regEfuseDataLo  uint32 = 0x8F6
	regEfuseDataHi  uint32 = 0x8F7

	regMaxTempADC     uint32 = 0x424
	regCurrentTempADC uint32 = 0x42C
)

// register is the minimal Transport surface this file needs, declared
// locally so it has no import-time dependency on internal/transport beyond
// what it actually calls.
type register interface {
	ReadBytes(reg uint32, n int) ([]byte, error)
	WriteBytes(reg uint32, data []byte) error
}

// ReadCalibrationCodes reads the per-lane eFuse calibration codes: the
// control register selects a lane, then the two data registers return its
// 16-bit code (spec.md §6's register map; not on the update/verify critical
// path).
func ReadCalibrationCodes(t register) (CalibrationCodes, error) {
	var codes CalibrationCodes
	for lane := range codes.Lane {
		if err := t.WriteBytes(regEfuseControl, []byte{byte(lane)}); err != nil {
			return CalibrationCodes{}, err
		}
		lo, err := t.ReadBytes(regEfuseDataLo, 1)
		if err != nil {
			return CalibrationCodes{}, err
		}
		hi, err := t.ReadBytes(regEfuseDataHi, 1)
		if err != nil {
			return CalibrationCodes{}, err
		}
		codes.Lane[lane] = uint16(lo[0]) | uint16(hi[0])<<8
	}
	return codes, nil
}

// ReadTemperature reads the maximum and current averaged temperature ADC
// codes (registers 0x424/0x42C), exposed for completeness of spec.md §6's
// register map; it is not part of the update/verify critical path.
func ReadTemperature(t register) (Temperatures, error) {
	maxBytes, err := t.ReadBytes(regMaxTempADC, 2)
	if err != nil {
		return Temperatures{}, err
	}
	curBytes, err := t.ReadBytes(regCurrentTempADC, 2)
	if err != nil {
		return Temperatures{}, err
	}
	return Temperatures{
		MaxCode:     uint16(maxBytes[0]) | uint16(maxBytes[1])<<8,
		CurrentCode: uint16(curBytes[0]) | uint16(curBytes[1])<<8,
	}, nil
}
