// Package image implements spec.md §4.4: parsing an EEPROM firmware image
// from Intel HEX (preferred) or raw binary, plus the block-framing and
// terminator-scanning helpers §4.6.C's block-CRC audit and §4.5's extent
// computation both need.
package image

import (
	"os"

	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// Size is the fixed EEPROM image size: four 64-KiB banks.
const Size = 262144

// BankSize is the size of one of the four EEPROM banks.
const BankSize = 65536

// Terminator is the 11-byte pattern demarcating the valid portion of an
// EEPROM image (spec.md §3, §6).
var Terminator = [11]byte{0xA5, 0x5A, 0xA5, 0x5A, 0xFF, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF}

// Image is a normalized, fixed-size EEPROM image buffer. The loader does not
// validate firmware semantics; it only produces this buffer (spec.md §4.4).
type Image struct {
	Data [Size]byte
}

// Load parses path as Intel HEX; if that fails, it falls back to reading
// exactly Size bytes as a raw binary image (spec.md §4.4).
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(raw)
}

// LoadBytes parses raw as Intel HEX text; on any parse failure, it treats
// raw itself as a raw binary image, which must be at least Size bytes long;
// only the first Size bytes are used.
func LoadBytes(raw []byte) (*Image, error) {
	img, hexErr := parseIntelHex(raw)
	if hexErr == nil {
		return img, nil
	}
	img2, binErr := parseBinary(raw)
	if binErr != nil {
		// The HEX error is the more informative diagnostic when the input
		// looks like it was meant to be HEX (starts with ':'); otherwise
		// surface the binary-length error.
		if len(raw) > 0 && raw[0] == ':' {
			return nil, hexErr
		}
		return nil, binErr
	}
	return img2, nil
}

func parseBinary(raw []byte) (*Image, error) {
	if len(raw) < Size {
		return nil, &retimerfwerr.BinaryReadUnderflowError{Got: len(raw), Expected: Size}
	}
	img := &Image{}
	copy(img.Data[:], raw[:Size])
	return img, nil
}

// End locates the terminator and rounds its end index up to the next
// 16-byte boundary. If the terminator is absent, the image is treated as
// filling the full Size bytes (spec.md §3 invariants, §8 boundary
// behavior).
func (img *Image) End() int {
	for i := 0; i+len(Terminator) <= Size; i++ {
		if matchesTerminator(img.Data[i : i+len(Terminator)]) {
			end := i + len(Terminator) // the byte after the pattern defines image end
			return roundUp16(end)
		}
	}
	return Size
}

func matchesTerminator(b []byte) bool {
	for i, tb := range Terminator {
		if b[i] != tb {
			return false
		}
	}
	return true
}

func roundUp16(n int) int {
	if n%16 == 0 {
		return n
	}
	r := (n/16 + 1) * 16
	if r > Size {
		return Size
	}
	return r
}

// BankChecksum returns the sum-of-bytes (mod 2^32) checksum over bank index
// bankIdx (0..3). If end < the bank's last byte (the terminator falls inside
// this bank), only the bytes up to end are summed — the "partial" bank
// checksum spec.md §4.6.A describes.
func (img *Image) BankChecksum(bankIdx int, end int) uint32 {
	start := bankIdx * BankSize
	stop := start + BankSize
	if end < stop {
		stop = end
	}
	if stop < start {
		stop = start
	}
	var sum uint32
	for _, b := range img.Data[start:stop] {
		sum += uint32(b)
	}
	return sum
}
